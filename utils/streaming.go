package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// bufPool reuses byte buffers to reduce GC pressure across pipeline items.
var bufPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

// AcquireBuffer returns a reset buffer from the pool.
func AcquireBuffer() *bytes.Buffer {
	b := bufPool.Get().(*bytes.Buffer)
	b.Reset()
	return b
}

// ReleaseBuffer returns b to the pool. Callers must not use b after this call.
func ReleaseBuffer(b *bytes.Buffer) {
	// Cap large buffers to avoid pinning excessive memory.
	if b.Cap() > 8*1024*1024 {
		return
	}
	bufPool.Put(b)
}

// DrainReader reads all bytes from r into a pooled buffer.
// The caller must pass the buffer back with ReleaseBuffer.
func DrainReader(ctx context.Context, r io.Reader, chunkSize int) (*bytes.Buffer, error) {
	if chunkSize <= 0 {
		chunkSize = 32 * 1024
	}
	buf := AcquireBuffer()
	chunk := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			ReleaseBuffer(buf)
			return nil, err
		}
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			ReleaseBuffer(buf)
			return nil, err
		}
	}
}

// ReadFileLimited reads path into memory, rejecting files larger than maxBytes
// (0 = no limit). The returned slice is owned by the caller.
func ReadFileLimited(ctx context.Context, path string, maxBytes int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if maxBytes > 0 {
		fi, err := f.Stat()
		if err != nil {
			return nil, err
		}
		if fi.Size() > maxBytes {
			return nil, fmt.Errorf("file exceeds %d byte limit: %s", maxBytes, path)
		}
		r = io.LimitReader(f, maxBytes)
	}

	buf, err := DrainReader(ctx, r, 32*1024)
	if err != nil {
		return nil, err
	}
	data := CloneBytes(buf.Bytes())
	ReleaseBuffer(buf)
	return data, nil
}

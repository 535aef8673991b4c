package core

import (
	"sort"
	"sync"
)

// codecEntry pairs the adapters registered for one format. Either side may be
// nil: webp, for example, has a decoder but no pure-Go encoder.
type codecEntry struct {
	decoder Decoder
	encoder Encoder
}

// DefaultRegistry maps formats to their codec adapters. Registration normally
// happens once at optimizer construction, but lookups run on every pipeline
// item, so access is guarded for concurrent use.
type DefaultRegistry struct {
	mu      sync.RWMutex
	entries map[Format]codecEntry
}

// NewRegistry returns an empty DefaultRegistry.
func NewRegistry() *DefaultRegistry {
	return &DefaultRegistry{entries: make(map[Format]codecEntry)}
}

func (r *DefaultRegistry) RegisterDecoder(f Format, d Decoder) {
	r.mu.Lock()
	e := r.entries[f]
	e.decoder = d
	r.entries[f] = e
	r.mu.Unlock()
}

func (r *DefaultRegistry) RegisterEncoder(f Format, enc Encoder) {
	r.mu.Lock()
	e := r.entries[f]
	e.encoder = enc
	r.entries[f] = e
	r.mu.Unlock()
}

func (r *DefaultRegistry) DecoderFor(f Format) (Decoder, bool) {
	r.mu.RLock()
	e := r.entries[f]
	r.mu.RUnlock()
	return e.decoder, e.decoder != nil
}

func (r *DefaultRegistry) EncoderFor(f Format) (Encoder, bool) {
	r.mu.RLock()
	e := r.entries[f]
	r.mu.RUnlock()
	return e.encoder, e.encoder != nil
}

// EncodableFormats lists the formats with a registered encoder, sorted so
// error messages stay stable.
func (r *DefaultRegistry) EncodableFormats() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Format, 0, len(r.entries))
	for f, e := range r.entries {
		if e.encoder != nil {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

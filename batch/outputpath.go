package batch

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/webimg/webimg/core"
	"github.com/webimg/webimg/utils"
)

// namer maps source paths to collision-free output names relative to the
// storage root. Two sources with the same stem but different extensions
// would otherwise overwrite each other once converted to a common target
// format.
type namer struct {
	mu    sync.Mutex
	taken map[string]int
}

func newNamer() *namer {
	return &namer{taken: make(map[string]int)}
}

// nameFor returns the storage-relative output name for src in the given
// target format. Safe for concurrent use; names are handed out first come,
// first served.
func (n *namer) nameFor(src string, format core.Format) string {
	stem := sanitizeStem(strings.TrimSuffix(filepath.Base(src), filepath.Ext(src)))
	ext := "." + utils.ExtForFormat(format)

	n.mu.Lock()
	defer n.mu.Unlock()

	candidate := stem + ext
	seen := n.taken[candidate]
	n.taken[candidate] = seen + 1
	if seen == 0 {
		return candidate
	}
	return fmt.Sprintf("%s-%d%s", stem, seen, ext)
}

// sanitizeStem strips characters that are unsafe in output filenames.
func sanitizeStem(stem string) string {
	var b strings.Builder
	for _, r := range stem {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.' || r == ' ':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "image"
	}
	return out
}

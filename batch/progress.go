package batch

import (
	"sync"
	"time"
)

// ProgressUpdate is a snapshot of batch progress delivered to a
// ProgressFunc. Percent is completed items over total, not bytes.
type ProgressUpdate struct {
	Total         int
	Completed     int
	Succeeded     int
	Failed        int
	Skipped       int
	Percent       float64
	CurrentFile   string
	BytesIn       int64
	BytesOut      int64
	AvgItemTime   time.Duration
	EstimatedLeft time.Duration
	Elapsed       time.Duration
}

// ProgressFunc receives throttled progress updates. It is called from the
// coordinator's item goroutines; implementations must be fast and must not
// block.
type ProgressFunc func(ProgressUpdate)

// progressTracker accumulates per-item outcomes and emits throttled updates.
// Emissions are rate-limited to one per interval, except the final item which
// always emits so consumers see 100%.
type progressTracker struct {
	mu       sync.Mutex
	total    int
	fn       ProgressFunc
	interval time.Duration
	started  time.Time
	lastEmit time.Time

	completed int
	succeeded int
	failed    int
	skipped   int
	bytesIn   int64
	bytesOut  int64

	// Exponential moving average of per-item wall time, used for the ETA.
	avgItem time.Duration
}

const defaultProgressInterval = 100 * time.Millisecond

func newProgressTracker(total int, fn ProgressFunc, interval time.Duration) *progressTracker {
	if interval <= 0 {
		interval = defaultProgressInterval
	}
	return &progressTracker{
		total:    total,
		fn:       fn,
		interval: interval,
		started:  time.Now(),
	}
}

// record folds one finished item into the tracker and emits if due.
func (p *progressTracker) record(path string, status itemStatus, bytesIn, bytesOut int64, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.completed++
	switch status {
	case itemSucceeded:
		p.succeeded++
	case itemFailed:
		p.failed++
	case itemSkipped:
		p.skipped++
	}
	p.bytesIn += bytesIn
	p.bytesOut += bytesOut

	if p.avgItem == 0 {
		p.avgItem = d
	} else {
		p.avgItem = (p.avgItem*9 + d) / 10
	}

	now := time.Now()
	final := p.completed >= p.total
	if p.fn == nil || (!final && now.Sub(p.lastEmit) < p.interval) {
		return
	}
	p.lastEmit = now

	remaining := p.total - p.completed
	update := ProgressUpdate{
		Total:         p.total,
		Completed:     p.completed,
		Succeeded:     p.succeeded,
		Failed:        p.failed,
		Skipped:       p.skipped,
		Percent:       100 * float64(p.completed) / float64(p.total),
		CurrentFile:   path,
		BytesIn:       p.bytesIn,
		BytesOut:      p.bytesOut,
		AvgItemTime:   p.avgItem,
		EstimatedLeft: time.Duration(remaining) * p.avgItem,
		Elapsed:       now.Sub(p.started),
	}
	p.fn(update)
}

type itemStatus int

const (
	itemSucceeded itemStatus = iota
	itemFailed
	itemSkipped
)

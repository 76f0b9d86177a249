package gate

import (
	"sync"
	"time"

	"github.com/danmuck/onegate/internal/intake"
)

// LinkReport is the JSON view of one handled link.
type LinkReport struct {
	DeliveryID string    `json:"delivery_id"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	URI        string    `json:"uri,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	HandledAt  time.Time `json:"handled_at"`
}

// reportLog keeps the most recent intake reports, oldest first.
type reportLog struct {
	mu    sync.Mutex
	limit int
	items []LinkReport
}

func newReportLog(limit int) *reportLog {
	return &reportLog{limit: limit}
}

func (l *reportLog) add(r intake.Report) {
	entry := LinkReport{
		DeliveryID: r.DeliveryID,
		Outcome:    string(r.Outcome),
		Reason:     string(r.Reason),
		URI:        r.URI,
		DurationMS: r.Duration.Milliseconds(),
		HandledAt:  time.Now().UTC(),
	}
	if r.Err != nil {
		entry.Error = r.Err.Error()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, entry)
	if over := len(l.items) - l.limit; over > 0 {
		l.items = append(l.items[:0:0], l.items[over:]...)
	}
}

// recent returns up to limit entries, newest last. limit <= 0 returns all.
func (l *reportLog) recent(limit int) []LinkReport {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := l.items
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	out := make([]LinkReport, len(items))
	copy(out, items)
	return out
}

func (l *reportLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

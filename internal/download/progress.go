package download

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/zerocas99/zenload/internal/config"
	"github.com/zerocas99/zenload/internal/media"
)

// stageRank orders progress stages so a late event for an earlier stage
// can never roll a status display backwards.
var stageRank = map[media.Stage]int{
	media.StageGettingInfo: 0,
	media.StageDownloading: 1,
	media.StageSending:     2,
	media.StageDone:        3,
	media.StageError:       3,
}

// Progress is the per-task status stream. Producers publish without
// blocking; a single consumer drains at the status edit interval. Non-
// terminal events are dropped when the buffer is full, terminal events
// always land.
type Progress struct {
	mu       sync.Mutex
	ch       chan media.ProgressEvent
	last     media.ProgressEvent
	hasLast  bool
	closed   bool
	terminal bool
}

func NewProgress() *Progress {
	return &Progress{ch: make(chan media.ProgressEvent, 16)}
}

// Publish offers an event to the stream. Regressions (earlier stage, or a
// lower percent within the same stage) and events after a terminal one are
// discarded.
func (p *Progress) Publish(ev media.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.terminal {
		return
	}
	if p.hasLast {
		lastRank, evRank := stageRank[p.last.Stage], stageRank[ev.Stage]
		if evRank < lastRank {
			return
		}
		if evRank == lastRank && ev.Percent < p.last.Percent && !ev.Stage.Terminal() {
			return
		}
	}
	p.last = ev
	p.hasLast = true

	if ev.Stage.Terminal() {
		p.terminal = true
		// Make room so the terminal event cannot be the one dropped.
		for len(p.ch) == cap(p.ch) {
			select {
			case <-p.ch:
			default:
			}
		}
		p.ch <- ev
		return
	}

	select {
	case p.ch <- ev:
	default:
		// Consumer is behind; newer events will carry the state.
	}
}

// Rewind moves the stream back to an earlier stage, bypassing the
// regression filter. The producer calls it when the zero-copy path fell
// through and the full download starts over; later events are filtered
// against the rewound stage.
func (p *Progress) Rewind(ev media.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.terminal {
		return
	}
	p.last = ev
	p.hasLast = true
	select {
	case p.ch <- ev:
	default:
	}
}

// Percent publishes a download-stage percentage.
func (p *Progress) Percent(stage media.Stage, percent float64) {
	n := int(percent)
	if n < 0 {
		n = 0
	}
	if n > 100 {
		n = 100
	}
	p.Publish(media.ProgressEvent{Stage: stage, Percent: n})
}

// Last returns the most recent published event.
func (p *Progress) Last() (media.ProgressEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.hasLast
}

// Consume drains the stream, invoking fn at most once per status edit
// interval. Terminal events bypass the limiter. Returns when a terminal
// event has been handled or the context ends.
func (p *Progress) Consume(ctx context.Context, fn func(ev media.ProgressEvent)) {
	limiter := rate.NewLimiter(rate.Every(config.StatusEditInterval), 1)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-p.ch:
			if !ok {
				return
			}
			if ev.Stage.Terminal() {
				fn(ev)
				return
			}
			if !limiter.Allow() {
				// Coalesce: skip this edit, the next event carries on.
				continue
			}
			fn(ev)
		}
	}
}

// Close releases the stream once no more events will be published.
func (p *Progress) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.ch)
}

package download

import (
	"context"
	"testing"
	"time"

	"github.com/zerocas99/zenload/internal/media"
)

func TestProgressDropsStageRegression(t *testing.T) {
	p := NewProgress()
	p.Publish(media.ProgressEvent{Stage: media.StageDownloading, Percent: 40})
	p.Publish(media.ProgressEvent{Stage: media.StageGettingInfo})

	last, ok := p.Last()
	if !ok || last.Stage != media.StageDownloading || last.Percent != 40 {
		t.Errorf("regressed to %+v", last)
	}
}

func TestProgressDropsPercentRegression(t *testing.T) {
	p := NewProgress()
	p.Publish(media.ProgressEvent{Stage: media.StageDownloading, Percent: 60})
	p.Publish(media.ProgressEvent{Stage: media.StageDownloading, Percent: 30})

	last, _ := p.Last()
	if last.Percent != 60 {
		t.Errorf("percent went backwards: %d", last.Percent)
	}
}

func TestProgressIgnoresEventsAfterTerminal(t *testing.T) {
	p := NewProgress()
	p.Publish(media.ProgressEvent{Stage: media.StageDone})
	p.Publish(media.ProgressEvent{Stage: media.StageDownloading, Percent: 99})

	last, _ := p.Last()
	if last.Stage != media.StageDone {
		t.Errorf("event accepted after terminal: %+v", last)
	}
}

func TestProgressTerminalSurvivesFullBuffer(t *testing.T) {
	p := NewProgress()
	// No consumer: flood well past the channel capacity.
	for i := 0; i <= 100; i++ {
		p.Publish(media.ProgressEvent{Stage: media.StageDownloading, Percent: i})
	}
	p.Publish(media.ProgressEvent{Stage: media.StageDone})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var sawTerminal bool
	p.Consume(ctx, func(ev media.ProgressEvent) {
		if ev.Stage.Terminal() {
			sawTerminal = true
		}
	})
	if !sawTerminal {
		t.Fatal("terminal event was dropped")
	}
}

func TestProgressConsumeStopsOnTerminal(t *testing.T) {
	p := NewProgress()
	done := make(chan struct{})
	go func() {
		p.Consume(context.Background(), func(ev media.ProgressEvent) {})
		close(done)
	}()

	p.Publish(media.ProgressEvent{Stage: media.StageError, Message: "boom"})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Consume did not return after terminal event")
	}
}

func TestProgressRewindReopensEarlierStage(t *testing.T) {
	p := NewProgress()
	p.Publish(media.ProgressEvent{Stage: media.StageGettingInfo})
	p.Publish(media.ProgressEvent{Stage: media.StageSending})

	// A plain publish of an earlier stage stays filtered.
	p.Publish(media.ProgressEvent{Stage: media.StageDownloading})
	if last, _ := p.Last(); last.Stage != media.StageSending {
		t.Fatalf("regression filter let %s through", last.Stage)
	}

	// A rewind moves the floor back so later download events flow again.
	p.Rewind(media.ProgressEvent{Stage: media.StageDownloading})
	p.Percent(media.StageDownloading, 40)
	last, ok := p.Last()
	if !ok || last.Stage != media.StageDownloading || last.Percent != 40 {
		t.Fatalf("after rewind last = %+v", last)
	}
}

func TestProgressRewindIgnoredAfterTerminal(t *testing.T) {
	p := NewProgress()
	p.Publish(media.ProgressEvent{Stage: media.StageDone})
	p.Rewind(media.ProgressEvent{Stage: media.StageDownloading})

	last, _ := p.Last()
	if last.Stage != media.StageDone {
		t.Errorf("rewind accepted after terminal: %+v", last)
	}
}

func TestProgressPercentClamps(t *testing.T) {
	p := NewProgress()
	p.Percent(media.StageDownloading, 150)
	last, _ := p.Last()
	if last.Percent != 100 {
		t.Errorf("Percent = %d, want 100", last.Percent)
	}
}

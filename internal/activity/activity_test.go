package activity

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/zerocas99/zenload/internal/media"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "activity.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndStats(t *testing.T) {
	l := openTestLog(t)

	l.RecordAttempt(Attempt{UserID: 1, URL: "https://example.com/a", Platform: "tiktok"})
	l.RecordAttempt(Attempt{UserID: 2, URL: "https://example.com/b", Platform: "youtube"})
	l.RecordOutcome(Outcome{UserID: 1, URL: "https://example.com/a", Success: true, FileType: "video", FileSize: 1024, Duration: 3 * time.Second})
	l.RecordOutcome(Outcome{UserID: 2, URL: "https://example.com/b", Success: false, Error: "all providers failed"})

	// The writer is async; poll until it has flushed.
	deadline := time.Now().Add(5 * time.Second)
	var stats Stats
	var err error
	for time.Now().Before(deadline) {
		stats, err = l.Stats()
		if err == nil && stats.TotalAttempts == 2 && stats.TotalSuccess == 1 && stats.TotalFailed == 1 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("stats = %+v, err = %v", stats, err)
}

func TestDefaultQualityFallbackChain(t *testing.T) {
	l := openTestLog(t)

	// Nothing stored: ask.
	if q := l.DefaultQuality(10, 20); q.Mode != "ask" {
		t.Errorf("unset preference = %+v, want ask", q)
	}

	// Chat preference applies when the user has none.
	if err := l.SetQuality("chat", 20, media.QualityBest); err != nil {
		t.Fatal(err)
	}
	if q := l.DefaultQuality(10, 20); q.Mode != "best" {
		t.Errorf("chat preference ignored: %+v", q)
	}

	// User preference overrides the chat's.
	if err := l.SetQuality("user", 10, media.QualityHeightOf(720)); err != nil {
		t.Fatal(err)
	}
	if q := l.DefaultQuality(10, 20); q.Mode != "height" || q.Height != 720 {
		t.Errorf("user preference ignored: %+v", q)
	}

	// Updating overwrites in place.
	if err := l.SetQuality("user", 10, media.QualityHeightOf(1080)); err != nil {
		t.Fatal(err)
	}
	if q := l.DefaultQuality(10, 20); q.Height != 1080 {
		t.Errorf("preference not updated: %+v", q)
	}
}

package download

import (
	"bytes"
	"container/heap"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/zerocas99/zenload/internal/config"
	"github.com/zerocas99/zenload/internal/deliver"
	"github.com/zerocas99/zenload/internal/media"
	"github.com/zerocas99/zenload/internal/platform"
	"github.com/zerocas99/zenload/internal/provider"
)

// fakeStrategy produces a local artifact without touching the network.
type fakeStrategy struct {
	name    string
	dir     string
	err     error
	direct  *provider.Result // when set, FetchDirectLink succeeds with it
	barrier chan struct{}    // when set, Download blocks until closed
}

func (f *fakeStrategy) Name() string                 { return f.name }
func (f *fakeStrategy) CanHandle(rawURL string) bool { return true }

func (f *fakeStrategy) NormalizeURL(ctx context.Context, rawURL string) string { return rawURL }

func (f *fakeStrategy) ListFormats(ctx context.Context, rawURL string) []media.FormatDescriptor {
	return []media.FormatDescriptor{media.BestFormat}
}

func (f *fakeStrategy) FetchDirectLink(ctx context.Context, rawURL string, opts provider.Options) (*provider.Result, error) {
	if f.direct != nil {
		return f.direct, nil
	}
	return nil, provider.Failf(provider.FailUnsupported, "no direct link")
}

func (f *fakeStrategy) Download(ctx context.Context, rawURL string, opts provider.Options, onProgress func(percent float64)) (*media.Downloaded, error) {
	if f.barrier != nil {
		select {
		case <-f.barrier:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if onProgress != nil {
		onProgress(50)
		onProgress(100)
	}
	path := filepath.Join(f.dir, "artifact-"+filepath.Base(rawURL)+".mp4")
	if err := os.WriteFile(path, bytes.Repeat([]byte{0xCD}, 4096), 0644); err != nil {
		return nil, err
	}
	return &media.Downloaded{LocalPath: path, Kind: media.KindVideo, SizeBytes: 4096}, nil
}

// fakeDeliverer records deliveries.
type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []string
	links     []string
	albums    [][]string
	err       error
	directErr error
	albumErr  error
}

func (f *fakeDeliverer) DeliverFile(ctx context.Context, chatID int64, dl *media.Downloaded) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.delivered = append(f.delivered, dl.LocalPath)
	f.mu.Unlock()
	return nil
}

func (f *fakeDeliverer) DeliverDirect(ctx context.Context, chatID int64, link *media.DirectLink) error {
	if f.directErr != nil {
		return f.directErr
	}
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.links = append(f.links, link.URL)
	f.mu.Unlock()
	return nil
}

func (f *fakeDeliverer) DeliverAlbum(ctx context.Context, chatID int64, urls []string, caption string) error {
	if f.albumErr != nil {
		return f.albumErr
	}
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.albums = append(f.albums, urls)
	f.mu.Unlock()
	return nil
}

func (f *fakeDeliverer) SendStatus(ctx context.Context, chatID int64, text string) (deliver.StatusRef, error) {
	return deliver.StatusRef{}, nil
}

func (f *fakeDeliverer) EditStatus(ctx context.Context, ref deliver.StatusRef, text string) error {
	return nil
}

func (f *fakeDeliverer) DeleteStatus(ctx context.Context, ref deliver.StatusRef) error {
	return nil
}

func (f *fakeDeliverer) SendError(ctx context.Context, chatID int64, text string) error {
	return nil
}

func (f *fakeDeliverer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered)
}

func newTestScheduler(t *testing.T, strat platform.Strategy, del *fakeDeliverer) *Scheduler {
	t.Helper()
	worker := &Worker{
		Dispatcher: platform.NewDispatcher(strat),
		Deliverer:  del,
	}
	s := NewScheduler(worker)
	t.Cleanup(s.Shutdown)
	return s
}

func request(user int64, url string) media.Request {
	return media.Request{URL: url, UserID: user, ChatID: 100, Quality: media.QualityBest}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSchedulerDeliversAndCleansUp(t *testing.T) {
	strat := &fakeStrategy{name: "fake", dir: t.TempDir()}
	del := &fakeDeliverer{}
	s := newTestScheduler(t, strat, del)

	task, err := s.Submit(request(1, "https://example.com/a"), strat)
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return task.Snapshot().State == "done"
	})
	if del.count() != 1 {
		t.Fatalf("delivered %d artifacts, want 1", del.count())
	}
	if _, err := os.Stat(del.delivered[0]); !os.IsNotExist(err) {
		t.Error("artifact not cleaned up after delivery")
	}
}

func TestSchedulerPerUserHardCap(t *testing.T) {
	barrier := make(chan struct{})
	strat := &fakeStrategy{name: "fake", dir: t.TempDir(), barrier: barrier}
	del := &fakeDeliverer{}
	s := newTestScheduler(t, strat, del)

	for i := 0; i < config.MaxDownloadsPerUser; i++ {
		if _, err := s.Submit(request(7, "https://example.com/a"), strat); err != nil {
			t.Fatalf("submit %d rejected: %v", i, err)
		}
	}

	if _, err := s.Submit(request(7, "https://example.com/a"), strat); !errors.Is(err, ErrTooManyDownloads) {
		t.Fatalf("expected ErrTooManyDownloads, got %v", err)
	}

	// Another user is unaffected by the first user's cap.
	if _, err := s.Submit(request(8, "https://example.com/b"), strat); err != nil {
		t.Fatalf("other user rejected: %v", err)
	}

	close(barrier)
	waitFor(t, 5*time.Second, func() bool {
		return del.count() == config.MaxDownloadsPerUser+1 && s.Stats().Users == 0
	})

	// Slots free up once downloads finish.
	if _, err := s.Submit(request(7, "https://example.com/c"), strat); err != nil {
		t.Fatalf("submit after drain rejected: %v", err)
	}
}

func TestSchedulerPriorityFavorsIdleUsers(t *testing.T) {
	// No dispatch loop: exercise ordering directly against the heap.
	s := &Scheduler{
		tasks:   make(map[string]*Task),
		perUser: make(map[int64]int),
		wake:    make(chan struct{}, 1),
	}

	for i := 0; i < 4; i++ {
		if _, err := s.Submit(request(1, "https://example.com/busy"), nil); err != nil {
			t.Fatal(err)
		}
	}
	idle, err := s.Submit(request(2, "https://example.com/idle"), nil)
	if err != nil {
		t.Fatal(err)
	}

	first := s.pop()
	second := s.pop()
	if first.Request.UserID != 1 || first.priority != 0 {
		t.Fatalf("first pop = user %d prio %d, want busy user's initial task", first.Request.UserID, first.priority)
	}
	if second.ID != idle.ID {
		t.Fatalf("idle user's task did not jump ahead; got user %d prio %d", second.Request.UserID, second.priority)
	}
	// Remaining pops are the busy user's backlog in FIFO order.
	var prevSeq uint64
	for i := 0; i < 3; i++ {
		task := s.pop()
		if task.Request.UserID != 1 {
			t.Fatalf("unexpected user %d in backlog", task.Request.UserID)
		}
		if task.seq <= prevSeq && prevSeq != 0 {
			t.Fatal("backlog not FIFO")
		}
		prevSeq = task.seq
	}
}

func TestSchedulerFIFOAmongEquals(t *testing.T) {
	s := &Scheduler{
		tasks:   make(map[string]*Task),
		perUser: make(map[int64]int),
		wake:    make(chan struct{}, 1),
	}

	a, _ := s.Submit(request(1, "https://example.com/1"), nil)
	b, _ := s.Submit(request(2, "https://example.com/2"), nil)
	c, _ := s.Submit(request(3, "https://example.com/3"), nil)

	for i, want := range []*Task{a, b, c} {
		got := s.pop()
		if got.ID != want.ID {
			t.Fatalf("pop %d = %s, want %s", i, got.ID, want.ID)
		}
	}
}

func TestSchedulerShutdownIdempotent(t *testing.T) {
	strat := &fakeStrategy{name: "fake", dir: t.TempDir()}
	s := newTestScheduler(t, strat, &fakeDeliverer{})

	s.Shutdown()
	s.Shutdown() // second call must be a no-op

	if _, err := s.Submit(request(1, "https://example.com/a"), strat); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("expected ErrShuttingDown, got %v", err)
	}
}

func TestHeapOrdering(t *testing.T) {
	h := &taskHeap{}
	push := func(prio int, seq uint64) {
		heap.Push(h, &Task{priority: prio, seq: seq})
	}
	push(2, 1)
	push(0, 2)
	push(1, 3)
	push(0, 4)

	wantSeq := []uint64{2, 4, 3, 1}
	for i, want := range wantSeq {
		got := heap.Pop(h).(*Task)
		if got.seq != want {
			t.Fatalf("pop %d: seq %d, want %d", i, got.seq, want)
		}
	}
}

func TestWorkerErrorPathCleansUpAndReports(t *testing.T) {
	strat := &fakeStrategy{name: "fake", dir: t.TempDir(), err: &provider.AllProvidersFailed{
		Errors: map[string]string{"cobalt": "down"},
	}}
	del := &fakeDeliverer{}
	s := newTestScheduler(t, strat, del)

	task, err := s.Submit(request(1, "https://example.com/a"), strat)
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return task.Snapshot().State == "error"
	})
	snap := task.Snapshot()
	if snap.Error == "" {
		t.Error("error state has no error message")
	}
	if snap.Stage != media.StageError {
		t.Errorf("terminal stage = %s, want error", snap.Stage)
	}
	if del.count() != 0 {
		t.Error("failed download still delivered something")
	}
}

func TestWorkerDeliversSlideshowAsAlbum(t *testing.T) {
	strat := &fakeStrategy{name: "fake", dir: t.TempDir(), direct: &provider.Result{
		PickerItems: []string{"https://cdn.example/1.jpg", "https://cdn.example/2.jpg", "https://cdn.example/3.jpg"},
		Title:       "photo mode",
		Kind:        media.KindPhoto,
	}}
	del := &fakeDeliverer{}
	s := newTestScheduler(t, strat, del)

	task, err := s.Submit(request(1, "https://example.com/slides"), strat)
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return task.Snapshot().State == "done"
	})
	del.mu.Lock()
	defer del.mu.Unlock()
	if len(del.albums) != 1 || len(del.albums[0]) != 3 {
		t.Fatalf("albums delivered = %v, want one album of 3 items", del.albums)
	}
	if len(del.delivered) != 0 {
		t.Errorf("slideshow also went through the artifact path: %v", del.delivered)
	}
}

func TestWorkerDirectFallbackKeepsDownloadVisible(t *testing.T) {
	strat := &fakeStrategy{name: "fake", dir: t.TempDir(), direct: &provider.Result{
		MediaURL: "https://cdn.example/v.mp4",
		Kind:     media.KindVideo,
	}}
	del := &fakeDeliverer{directErr: errors.New("bad gateway")}
	worker := &Worker{Dispatcher: platform.NewDispatcher(strat), Deliverer: del}

	task := &Task{ID: "t1", Request: request(1, "https://example.com/a"), Progress: NewProgress()}
	if err := worker.Run(context.Background(), task); err != nil {
		t.Fatalf("fallback download failed: %v", err)
	}
	if del.count() != 1 {
		t.Fatalf("delivered %d artifacts, want 1", del.count())
	}

	// The failed direct attempt showed the sending stage; the stream must
	// come back to downloading for the real transfer.
	var stages []media.Stage
drain:
	for {
		select {
		case ev := <-task.Progress.ch:
			stages = append(stages, ev.Stage)
		default:
			break drain
		}
	}
	sawSending := false
	sawDownloadAfterSending := false
	for _, st := range stages {
		if st == media.StageSending {
			sawSending = true
		}
		if sawSending && st == media.StageDownloading {
			sawDownloadAfterSending = true
		}
	}
	if !sawDownloadAfterSending {
		t.Fatalf("no downloading event after the direct attempt; stream: %v", stages)
	}
	if stages[len(stages)-1] != media.StageDone {
		t.Errorf("stream did not end done: %v", stages)
	}
}

func TestWorkerUsesPlatformHint(t *testing.T) {
	first := &fakeStrategy{name: "first", dir: t.TempDir()}
	second := &fakeStrategy{name: "second", dir: t.TempDir()}
	del := &fakeDeliverer{}
	worker := &Worker{Dispatcher: platform.NewDispatcher(first, second), Deliverer: del}

	// Both strategies claim the URL; the hint must win over dispatch order.
	task := &Task{
		ID:       "t1",
		Request:  media.Request{URL: "https://example.com/a", PlatformHint: "second", UserID: 1, ChatID: 100},
		Progress: NewProgress(),
	}
	if err := worker.Run(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	if del.count() != 1 || !strings.HasPrefix(del.delivered[0], second.dir) {
		t.Fatalf("delivered = %v, want an artifact from the hinted strategy", del.delivered)
	}
}

func TestSchedulerEvictsFinishedTasks(t *testing.T) {
	oldRetention := config.TaskRetention
	config.TaskRetention = 50 * time.Millisecond
	t.Cleanup(func() { config.TaskRetention = oldRetention })

	strat := &fakeStrategy{name: "fake", dir: t.TempDir()}
	s := newTestScheduler(t, strat, &fakeDeliverer{})

	task, err := s.Submit(request(1, "https://example.com/a"), strat)
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, 5*time.Second, func() bool {
		return task.Snapshot().State == "done"
	})
	waitFor(t, 5*time.Second, func() bool {
		_, ok := s.Lookup(task.ID)
		return !ok
	})
}

func TestSchedulerShutdownReleasesQueuedTasks(t *testing.T) {
	barrier := make(chan struct{})
	strat := &fakeStrategy{name: "fake", dir: t.TempDir(), barrier: barrier}
	worker := &Worker{Dispatcher: platform.NewDispatcher(strat), Deliverer: &fakeDeliverer{}}

	// One slot, so the second submission has to queue.
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		worker:  worker,
		tasks:   make(map[string]*Task),
		perUser: make(map[int64]int),
		sem:     semaphore.NewWeighted(1),
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
	go s.loop()

	running, err := s.Submit(request(1, "https://example.com/a"), strat)
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, 5*time.Second, func() bool {
		return running.Snapshot().State == "running"
	})
	queued, err := s.Submit(request(2, "https://example.com/b"), strat)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		s.Shutdown()
		close(done)
	}()
	waitFor(t, 5*time.Second, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.draining
	})
	close(barrier)

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("Shutdown did not return")
	}

	if state := running.Snapshot().State; state != "done" {
		t.Errorf("in-flight task state = %s, want done", state)
	}
	snap := queued.Snapshot()
	if snap.State != "error" || snap.Error != ErrShuttingDown.Error() {
		t.Errorf("queued task = %s/%q, want the shutdown rejection", snap.State, snap.Error)
	}
	if stats := s.Stats(); stats.Queued != 0 || stats.Running != 0 || stats.Users != 0 {
		t.Errorf("scheduler not empty after shutdown: %+v", stats)
	}
}

func TestWorkerDeliveryFailureIsTerminalError(t *testing.T) {
	strat := &fakeStrategy{name: "fake", dir: t.TempDir()}
	del := &fakeDeliverer{err: errors.New("chat not found")}
	s := newTestScheduler(t, strat, del)

	task, err := s.Submit(request(1, "https://example.com/a"), strat)
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return task.Snapshot().State == "error"
	})

	// The artifact must be gone even when delivery failed.
	entries, _ := os.ReadDir(strat.dir)
	if len(entries) != 0 {
		t.Errorf("%d files left behind after failed delivery", len(entries))
	}
}

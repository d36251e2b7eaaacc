package jobserver

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/CCSDForge/episciences-front-next-sub002/internal/rebuild"
	"github.com/CCSDForge/episciences-front-next-sub002/pkg/logger"
)

// syncBuffer makes a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type trackingExecutor struct {
	mu        sync.Mutex
	active    map[string]int
	maxActive map[string]int
	globalMax int
	global    int
	delay     time.Duration
}

func newTrackingExecutor(delay time.Duration) *trackingExecutor {
	return &trackingExecutor{
		active:    make(map[string]int),
		maxActive: make(map[string]int),
		delay:     delay,
	}
}

func (f *trackingExecutor) Run(ctx context.Context, d rebuild.Descriptor, emit rebuild.Emitter) rebuild.Result {
	f.mu.Lock()
	f.active[d.Journal]++
	f.global++
	if f.active[d.Journal] > f.maxActive[d.Journal] {
		f.maxActive[d.Journal] = f.active[d.Journal]
	}
	if f.global > f.globalMax {
		f.globalMax = f.global
	}
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	f.active[d.Journal]--
	f.global--
	f.mu.Unlock()
	return rebuild.Result{JobID: "job", Descriptor: d, ExitCode: rebuild.ExitOK}
}

func TestQueueSerializesPerJournal(t *testing.T) {
	ex := newTrackingExecutor(30 * time.Millisecond)
	q := NewQueue(ex, 4, 16, testLogger())
	defer q.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			desc := rebuild.Descriptor{Journal: "epijinfo", Kind: rebuild.KindFull}
			if _, err := q.Submit(context.Background(), desc, nil); err != nil {
				t.Errorf("Submit: %v", err)
			}
		}()
	}
	wg.Wait()

	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.maxActive["epijinfo"] != 1 {
		t.Fatalf("same-journal jobs overlapped: max concurrency %d", ex.maxActive["epijinfo"])
	}
}

func TestQueueRunsJournalsInParallel(t *testing.T) {
	ex := newTrackingExecutor(100 * time.Millisecond)
	q := NewQueue(ex, 4, 16, testLogger())
	defer q.Close()

	var wg sync.WaitGroup
	for _, journal := range []string{"epijinfo", "jtcam", "dmtcs"} {
		wg.Add(1)
		go func(j string) {
			defer wg.Done()
			desc := rebuild.Descriptor{Journal: j, Kind: rebuild.KindFull}
			if _, err := q.Submit(context.Background(), desc, nil); err != nil {
				t.Errorf("Submit(%s): %v", j, err)
			}
		}(journal)
	}
	wg.Wait()

	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.globalMax < 2 {
		t.Fatalf("distinct journals never overlapped, global max %d", ex.globalMax)
	}
}

func TestQueueLogsLifecycle(t *testing.T) {
	var buf syncBuffer
	log := logger.NewWithWriter(&buf, "test", slog.LevelDebug)

	q := NewQueue(newTrackingExecutor(0), 2, 4, log)
	desc := rebuild.Descriptor{Journal: "epijinfo", Kind: rebuild.KindFull}
	if _, err := q.Submit(context.Background(), desc, nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	q.Close()

	logged := buf.String()
	if !strings.Contains(logged, "rebuild queue started") {
		t.Fatalf("startup should be logged, got %q", logged)
	}
	if !strings.Contains(logged, "rebuild queue stopped") {
		t.Fatalf("shutdown should be logged, got %q", logged)
	}
}

func TestQueueRejectsSubmitAfterClose(t *testing.T) {
	q := NewQueue(newTrackingExecutor(0), 1, 1, testLogger())
	q.Close()

	_, err := q.Submit(context.Background(), rebuild.Descriptor{Journal: "epijinfo", Kind: rebuild.KindFull}, nil)
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}

func TestQueueHonorsContextWhileQueued(t *testing.T) {
	ex := newTrackingExecutor(200 * time.Millisecond)
	q := NewQueue(ex, 1, 1, testLogger())
	defer q.Close()

	// Occupy the single worker and the single backlog slot.
	for i := 0; i < 2; i++ {
		go func() {
			_, _ = q.Submit(context.Background(), rebuild.Descriptor{Journal: "epijinfo", Kind: rebuild.KindFull}, nil)
		}()
	}
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Submit(ctx, rebuild.Descriptor{Journal: "jtcam", Kind: rebuild.KindFull}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled for a queued job, got %v", err)
	}
}

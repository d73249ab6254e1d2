package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hoanghai1803/lumen/internal/feeds"
)

func TestNew_InvalidTimezone(t *testing.T) {
	_, err := New("Invalid/Zone", 0)
	if err == nil {
		t.Fatal("expected error for invalid timezone")
	}
}

func TestAdd_InvalidSpec(t *testing.T) {
	s, err := New("UTC", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Stop(context.Background())

	if err := s.Add("bad", "every tuesday", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for invalid spec")
	}
	if _, ok := s.Next("bad"); ok {
		t.Error("invalid job should not be registered")
	}
}

func TestAdd_Replaces(t *testing.T) {
	s, err := New("UTC", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Stop(context.Background())

	noop := func(context.Context) error { return nil }
	if err := s.Add(JobCacheSweep, "0 8 * * *", noop); err != nil {
		t.Fatal(err)
	}
	first := s.entries[JobCacheSweep]

	if err := s.Add(JobCacheSweep, "0 10 * * *", noop); err != nil {
		t.Fatal(err)
	}
	if s.entries[JobCacheSweep] == first {
		t.Error("expected entry ID to change after reschedule")
	}
	if got := len(s.cron.Entries()); got != 1 {
		t.Errorf("cron has %d entries, want 1", got)
	}
}

func TestStart_RunsJob(t *testing.T) {
	s, err := New("UTC", time.Second)
	if err != nil {
		t.Fatal(err)
	}

	var runs atomic.Int32
	if err := s.Add("tick", "@every 1s", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("job context has no deadline")
		}
		runs.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Next("tick"); !ok {
		t.Fatal("Next reports job missing")
	}

	s.Start()
	deadline := time.Now().Add(5 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	s.Stop(context.Background())

	if runs.Load() == 0 {
		t.Fatal("job never ran")
	}
}

func TestStop_CancelsRunningJob(t *testing.T) {
	s, err := New("UTC", 0)
	if err != nil {
		t.Fatal(err)
	}

	started := make(chan struct{})
	cancelled := make(chan struct{})
	if err := s.Add("long", "@every 1s", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}); err != nil {
		t.Fatal(err)
	}

	s.Start()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(ctx)

	select {
	case <-cancelled:
	default:
		t.Fatal("running job was not cancelled by Stop")
	}
}

type fakeSweeper struct {
	n   int
	err error
}

func (f fakeSweeper) Sweep(context.Context) (int, error) { return f.n, f.err }

type fakeIngester struct {
	calls int
	err   error
}

func (f *fakeIngester) Run(context.Context) (*feeds.IngestStats, error) {
	f.calls++
	return &feeds.IngestStats{}, f.err
}

func TestJobs(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	if err := CacheSweep(fakeSweeper{n: 3})(ctx); err != nil {
		t.Errorf("CacheSweep error = %v, want nil", err)
	}
	if err := CacheSweep(fakeSweeper{err: boom})(ctx); !errors.Is(err, boom) {
		t.Errorf("CacheSweep error = %v, want %v", err, boom)
	}

	in := &fakeIngester{}
	if err := FeedIngest(in)(ctx); err != nil {
		t.Errorf("FeedIngest error = %v", err)
	}
	in.err = boom
	if err := FeedIngest(in)(ctx); !errors.Is(err, boom) {
		t.Errorf("FeedIngest error = %v, want %v", err, boom)
	}
	if in.calls != 2 {
		t.Errorf("ingester ran %d times, want 2", in.calls)
	}
}

func TestRunNow(t *testing.T) {
	s, err := New("UTC", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Stop(context.Background())

	ran := false
	s.RunNow("once", func(context.Context) error {
		ran = true
		return errors.New("logged, not returned")
	})
	if !ran {
		t.Error("RunNow did not run the job")
	}
}

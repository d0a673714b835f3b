package syncsvc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSyncer struct {
	mu       sync.Mutex
	attempts int
	// failures is the number of initial attempts that fail.
	failures int
	done     chan struct{}
}

func (f *fakeSyncer) Sync(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.failures {
		return errors.New("push failed")
	}
	if f.done != nil {
		select {
		case f.done <- struct{}{}:
		default:
		}
	}
	return nil
}

func (f *fakeSyncer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

type fakeCommitter struct {
	mu    sync.Mutex
	calls []string
	err   error
	done  chan struct{}
}

func (f *fakeCommitter) StageAndCommit(msg string, paths ...string) error {
	f.mu.Lock()
	f.calls = append(f.calls, msg)
	f.mu.Unlock()
	if f.done != nil {
		f.done <- struct{}{}
	}
	return f.err
}

func (f *fakeCommitter) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestSyncWithRetry(t *testing.T) {
	t.Parallel()

	t.Run("RetriesThenSucceeds", func(t *testing.T) {
		t.Parallel()
		// maxRetries=2: one initial attempt plus two retries.
		syncer := &fakeSyncer{failures: 2}
		s := New(syncer, &fakeCommitter{}, Options{MaxRetries: 2, RetryDelay: time.Millisecond})
		s.syncWithRetry(context.Background())
		if got := syncer.count(); got != 3 {
			t.Errorf("expected exactly 3 push attempts, got %d", got)
		}
	})

	t.Run("GivesUpAfterExhaustion", func(t *testing.T) {
		t.Parallel()
		syncer := &fakeSyncer{failures: 100}
		s := New(syncer, &fakeCommitter{}, Options{MaxRetries: 2, RetryDelay: time.Millisecond})
		// Must not panic or block; failure stays inside the scheduler.
		s.syncWithRetry(context.Background())
		if got := syncer.count(); got != 3 {
			t.Errorf("expected 3 attempts before giving up, got %d", got)
		}
	})

	t.Run("StopsEarlyOnCancel", func(t *testing.T) {
		t.Parallel()
		syncer := &fakeSyncer{failures: 100}
		s := New(syncer, &fakeCommitter{}, Options{MaxRetries: 5, RetryDelay: time.Hour})
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		start := time.Now()
		s.syncWithRetry(ctx)
		if time.Since(start) > time.Minute {
			t.Error("cancel did not interrupt the retry sleep")
		}
	})
}

func TestSchedulerLoop(t *testing.T) {
	t.Parallel()
	syncer := &fakeSyncer{done: make(chan struct{}, 1)}
	s := New(syncer, &fakeCommitter{}, Options{Interval: 5 * time.Millisecond, MaxRetries: 1, RetryDelay: time.Millisecond})

	s.Start()
	defer s.Stop()

	select {
	case <-syncer.done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler never attempted a sync")
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	s := New(&fakeSyncer{}, &fakeCommitter{}, Options{Interval: time.Hour})

	if s.Running() {
		t.Error("new scheduler must be stopped")
	}
	s.Start()
	if !s.Running() {
		t.Error("Running() = false after Start")
	}
	// Starting twice is a no-op.
	s.Start()

	s.Stop()
	if s.Running() {
		t.Error("Running() = true after Stop")
	}
	// Stopping twice is a no-op.
	s.Stop()

	// Restart works.
	s.Start()
	if !s.Running() {
		t.Error("Running() = false after restart")
	}
	s.Stop()
}

func TestCommitNow(t *testing.T) {
	t.Parallel()

	t.Run("CommitsOffCaller", func(t *testing.T) {
		t.Parallel()
		committer := &fakeCommitter{done: make(chan struct{}, 4)}
		s := New(&fakeSyncer{}, committer, Options{Interval: time.Hour, CommitRate: 1000})
		s.Start()
		defer s.Stop()

		if err := s.CommitNow([]string{"topics/t1/messages.jsonl"}, false); err != nil {
			t.Fatalf("CommitNow() failed: %v", err)
		}
		select {
		case <-committer.done:
		case <-time.After(5 * time.Second):
			t.Fatal("commit job never ran")
		}
		msgs := committer.messages()
		if len(msgs) != 1 || msgs[0] != "Add message messages.jsonl" {
			t.Errorf("unexpected commit messages %v", msgs)
		}
	})

	t.Run("MediaMessage", func(t *testing.T) {
		t.Parallel()
		committer := &fakeCommitter{done: make(chan struct{}, 4)}
		s := New(&fakeSyncer{}, committer, Options{Interval: time.Hour, CommitRate: 1000})
		s.Start()
		defer s.Stop()

		if err := s.CommitNow([]string{"a.jpg", "b.jpg"}, true); err != nil {
			t.Fatal(err)
		}
		<-committer.done
		if msgs := committer.messages(); msgs[0] != "Add 2 media files" {
			t.Errorf("unexpected commit message %q", msgs[0])
		}
	})

	t.Run("FailureIsSwallowed", func(t *testing.T) {
		t.Parallel()
		committer := &fakeCommitter{err: errors.New("git broke"), done: make(chan struct{}, 4)}
		s := New(&fakeSyncer{}, committer, Options{Interval: time.Hour, CommitRate: 1000})
		s.Start()
		defer s.Stop()

		// The commit fails inside the worker; the caller never sees it.
		if err := s.CommitNow([]string{"x"}, false); err != nil {
			t.Errorf("CommitNow() must not surface commit failures, got %v", err)
		}
		<-committer.done
	})

	t.Run("StoppedScheduler", func(t *testing.T) {
		t.Parallel()
		s := New(&fakeSyncer{}, &fakeCommitter{}, Options{Interval: time.Hour})
		if err := s.CommitNow([]string{"x"}, false); err == nil {
			t.Error("expected error from stopped scheduler")
		}
	})
}

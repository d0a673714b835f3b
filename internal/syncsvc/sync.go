// Package syncsvc runs background synchronization of the archive
// repository with its remote, decoupled from the write path so message
// saves never block on network I/O.
package syncsvc

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Syncer pushes locally committed history to the remote. Satisfied by
// the storage coordinator.
type Syncer interface {
	Sync(ctx context.Context) error
}

// Committer stages and commits paths as one commit. Satisfied by the git
// repository adapter.
type Committer interface {
	StageAndCommit(msg string, paths ...string) error
}

// Options tune the scheduler loop.
type Options struct {
	// Interval between sync cycles. Default 5 minutes.
	Interval time.Duration
	// MaxRetries is the number of retries after the first failed push
	// attempt within one cycle. Default 3.
	MaxRetries int
	// RetryDelay is the sleep between attempts. Default 1 minute.
	RetryDelay time.Duration
	// CommitRate bounds out-of-band CommitNow commits. Default 1/s with
	// a burst of 5.
	CommitRate rate.Limit
}

func (o *Options) fill() {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Minute
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Minute
	}
	if o.CommitRate <= 0 {
		o.CommitRate = rate.Limit(1)
	}
}

type commitJob struct {
	paths   []string
	isMedia bool
}

// Scheduler periodically pushes pending commits with bounded retries and
// backoff. One background goroutine runs the loop; a second drains
// best-effort CommitNow jobs so they never block the caller.
type Scheduler struct {
	syncer    Syncer
	committer Committer
	opts      Options
	limiter   *rate.Limiter

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	jobs    chan commitJob
}

// New creates a stopped scheduler.
func New(syncer Syncer, committer Committer, opts Options) *Scheduler {
	opts.fill()
	return &Scheduler{
		syncer:    syncer,
		committer: committer,
		opts:      opts,
		limiter:   rate.NewLimiter(opts.CommitRate, 5),
	}
}

// Start launches the sync loop. Starting a running scheduler is a no-op
// with a warning.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		slog.Warn("Sync scheduler is already running")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.jobs = make(chan commitJob, 16)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
	jobs := s.jobs
	go func() {
		defer s.wg.Done()
		s.drainCommits(ctx, jobs)
	}()
	slog.Info("Sync scheduler started", "interval", s.opts.Interval)
}

// Stop cancels the loop and waits for it to exit. A push in progress is
// allowed to finish. Stopping a stopped scheduler is a no-op with a
// warning.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		slog.Warn("Sync scheduler is not running")
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	slog.Info("Sync scheduler stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncWithRetry(ctx)
		}
	}
}

// syncWithRetry attempts one push, then up to MaxRetries more with
// RetryDelay between attempts. Exhausting retries logs and gives up
// until the next interval; it never raises into the write path.
func (s *Scheduler) syncWithRetry(ctx context.Context) {
	attempts := s.opts.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		err := s.syncer.Sync(ctx)
		if err == nil {
			slog.Debug("Sync succeeded", "attempt", attempt)
			return
		}
		if attempt == attempts {
			slog.Error("Sync failed, giving up until next interval", "attempts", attempts, "err", err)
			return
		}
		slog.Warn("Sync attempt failed, retrying", "attempt", attempt, "max_attempts", attempts, "retry_delay", s.opts.RetryDelay, "err", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.opts.RetryDelay):
		}
	}
}

// CommitNow queues a best-effort commit of the given paths, executed off
// the caller's goroutine. Failures are logged and swallowed, never
// returned: a git hiccup must not fail message ingestion. The returned
// error only reports a stopped scheduler or a full queue, and the caller
// is allowed to ignore it.
func (s *Scheduler) CommitNow(paths []string, isMedia bool) error {
	s.mu.Lock()
	running := s.running
	jobs := s.jobs
	s.mu.Unlock()
	if !running {
		return fmt.Errorf("sync scheduler is not running")
	}
	select {
	case jobs <- commitJob{paths: paths, isMedia: isMedia}:
		return nil
	default:
		return fmt.Errorf("commit queue is full")
	}
}

func (s *Scheduler) drainCommits(ctx context.Context, jobs <-chan commitJob) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-jobs:
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
			msg := commitMessage(job)
			if err := s.committer.StageAndCommit(msg, job.paths...); err != nil {
				slog.Warn("Best-effort commit failed", "paths", len(job.paths), "err", err)
			}
		}
	}
}

func commitMessage(job commitJob) string {
	if job.isMedia {
		return fmt.Sprintf("Add %d media files", len(job.paths))
	}
	if len(job.paths) == 1 {
		return fmt.Sprintf("Add message %s", filepath.Base(job.paths[0]))
	}
	return fmt.Sprintf("Add %d files", len(job.paths))
}

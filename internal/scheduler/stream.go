package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/backyonatan-alt/warmonitor/backend/internal/backoff"
	"github.com/backyonatan-alt/warmonitor/backend/internal/fetcher"
	"github.com/backyonatan-alt/warmonitor/backend/internal/model"
)

type State string

const (
	Idle       State = "idle"
	Fetching   State = "fetching"
	Committing State = "committing"
	Backoff    State = "backoff"
)

// FetchFunc runs the fetch half of a cycle. A non-nil commit publishes what was
// fetched; err may be set alongside it for a partial cycle.
type FetchFunc func(ctx context.Context) (commit func(ctx context.Context) error, err error)

// StatusSink receives the stream status after every transition.
type StatusSink interface {
	SetStreamStatus(name string, st model.StreamStatus)
}

type Recorder interface {
	ObserveCycle(stream, outcome string, d time.Duration)
	SetBackoff(stream string, resumeAt time.Time)
}

type nopSink struct{}

func (nopSink) SetStreamStatus(string, model.StreamStatus) {}

type nopRecorder struct{}

func (nopRecorder) ObserveCycle(string, string, time.Duration) {}
func (nopRecorder) SetBackoff(string, time.Time)               {}

// Stream runs one cadence of cycles. At most one cycle is outstanding at a
// time; triggers that arrive while busy or backing off are dropped.
type Stream struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	fetch    FetchFunc
	clock    backoff.Clock
	policy   backoff.Policy
	sink     StatusSink
	rec      Recorder

	// commitMu is held across a commit and taken before mu.
	commitMu sync.Mutex

	mu          sync.Mutex
	ctx         context.Context
	state       State
	started     bool
	stopped     bool
	timer       backoff.Timer
	resumeAt    time.Time
	lastSuccess *time.Time
	lastErr     string
	wg          sync.WaitGroup
}

type StreamConfig struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single cycle; zero means no bound.
	Timeout time.Duration
	Fetch   FetchFunc
	Clock   backoff.Clock
	Policy  backoff.Policy
	Sink    StatusSink
	Metrics Recorder
}

func NewStream(cfg StreamConfig) *Stream {
	s := &Stream{
		name:     cfg.Name,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		fetch:    cfg.Fetch,
		clock:    cfg.Clock,
		policy:   cfg.Policy,
		sink:     cfg.Sink,
		rec:      cfg.Metrics,
		state:    Idle,
	}
	if s.clock == nil {
		s.clock = backoff.System()
	}
	if s.sink == nil {
		s.sink = nopSink{}
	}
	if s.rec == nil {
		s.rec = nopRecorder{}
	}
	return s
}

func (s *Stream) Name() string { return s.name }

// Start runs the first cycle immediately.
func (s *Stream) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.ctx = ctx
	s.mu.Unlock()

	slog.Info("stream started", "stream", s.name, "interval", s.interval)
	s.Trigger()
}

// Trigger starts a cycle now if the stream is idle. It reports whether a cycle
// was started.
func (s *Stream) Trigger() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped || s.state != Idle {
		return false
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.state = Fetching
	s.publishLocked()

	s.wg.Add(1)
	go s.run(s.ctx)
	return true
}

// Stop cancels pending timers. A cycle still fetching is left to finish and its
// result is discarded; a commit already under way completes before Stop returns,
// and none starts after.
func (s *Stream) Stop() {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	slog.Info("stream stopped", "stream", s.name)
}

// Status returns the stream's current status.
func (s *Stream) Status() model.StreamStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Stream) run(ctx context.Context) {
	defer s.wg.Done()
	start := s.clock.Now()

	cctx, cancel := ctx, context.CancelFunc(func() {})
	if s.timeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, s.timeout)
	}
	defer cancel()

	commit, err := s.fetch(cctx)

	s.commitMu.Lock()
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.commitMu.Unlock()
		slog.Debug("discarding cycle result after stop", "stream", s.name)
		return
	}
	s.state = Committing
	s.publishLocked()
	s.mu.Unlock()

	var commitErr error
	if commit != nil {
		commitErr = commit(cctx)
	}
	s.commitMu.Unlock()
	s.finish(start, commit != nil && commitErr == nil, err, commitErr)
}

func (s *Stream) finish(start time.Time, committed bool, fetchErr, commitErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	now := s.clock.Now()

	outcome := "ok"
	var pe *fetcher.PartialError
	switch {
	case commitErr != nil:
		outcome = "failed"
		slog.Error("commit failed", "stream", s.name, "error", commitErr)
	case fetchErr != nil && committed && errors.As(fetchErr, &pe):
		outcome = "partial"
	case fetchErr != nil:
		outcome = "failed"
	}
	if committed {
		at := now.UTC()
		s.lastSuccess = &at
	}
	s.lastErr = ""
	if err := errors.Join(fetchErr, commitErr); err != nil {
		s.lastErr = err.Error()
	}

	if fe, ok := fetcher.RateLimit(fetchErr); ok {
		outcome = "rate_limited"
		s.resumeAt = s.policy.ResumeAt(now, fe.RetryAfter, fe.HasRetryAfter)
		s.state = Backoff
		s.timer = s.clock.AfterFunc(s.resumeAt.Sub(now), s.resume)
		slog.Warn("rate limited, backing off", "stream", s.name, "source", fe.Source,
			"retry_after", fe.RetryAfter, "header", fe.HasRetryAfter, "resume_at", s.resumeAt)
	} else {
		s.resumeAt = time.Time{}
		s.state = Idle
		s.timer = s.clock.AfterFunc(s.interval, s.tick)
	}

	s.rec.SetBackoff(s.name, s.resumeAt)
	s.rec.ObserveCycle(s.name, outcome, now.Sub(start))
	s.publishLocked()
	slog.Info("cycle finished", "stream", s.name, "outcome", outcome, "duration", now.Sub(start))
}

func (s *Stream) tick() {
	s.Trigger()
}

func (s *Stream) resume() {
	s.mu.Lock()
	if s.stopped || s.state != Backoff {
		s.mu.Unlock()
		return
	}
	s.state = Idle
	s.resumeAt = time.Time{}
	s.timer = nil
	s.rec.SetBackoff(s.name, s.resumeAt)
	s.publishLocked()
	s.mu.Unlock()

	slog.Info("backoff elapsed, resuming", "stream", s.name)
	s.Trigger()
}

func (s *Stream) statusLocked() model.StreamStatus {
	st := model.StreamStatus{
		State:       string(s.state),
		LastSuccess: s.lastSuccess,
		LastError:   s.lastErr,
	}
	if !s.resumeAt.IsZero() {
		at := s.resumeAt.UTC()
		st.ResumeAt = &at
	}
	return st
}

func (s *Stream) publishLocked() {
	s.sink.SetStreamStatus(s.name, s.statusLocked())
}

// wait blocks until every cycle started so far has returned.
func (s *Stream) wait() {
	s.wg.Wait()
}

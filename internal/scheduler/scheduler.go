package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/backyonatan-alt/warmonitor/backend/internal/backoff"
	"github.com/backyonatan-alt/warmonitor/backend/internal/model"
	"github.com/backyonatan-alt/warmonitor/backend/internal/pipeline"
)

const (
	StreamFast = "fast"
	StreamSlow = "slow"
)

type Options struct {
	FastInterval time.Duration
	SlowInterval time.Duration
	Timeout      time.Duration
	Policy       backoff.Policy
	Clock        backoff.Clock
	Status       StatusSink
	Metrics      Recorder
}

// Scheduler runs the fast and slow streams independently.
type Scheduler struct {
	streams map[string]*Stream
	stop    chan struct{}
	once    sync.Once
}

func New(p *pipeline.Pipeline, opts Options) *Scheduler {
	fast := NewStream(StreamConfig{
		Name:     StreamFast,
		Interval: opts.FastInterval,
		Timeout:  opts.Timeout,
		Fetch: func(ctx context.Context) (func(context.Context) error, error) {
			res, err := p.FetchFast(ctx)
			if res == nil {
				return nil, err
			}
			return func(ctx context.Context) error { return p.CommitFast(ctx, res) }, err
		},
		Clock:   opts.Clock,
		Policy:  opts.Policy,
		Sink:    opts.Status,
		Metrics: opts.Metrics,
	})
	slow := NewStream(StreamConfig{
		Name:     StreamSlow,
		Interval: opts.SlowInterval,
		Timeout:  opts.Timeout,
		Fetch: func(ctx context.Context) (func(context.Context) error, error) {
			res, err := p.FetchSlow(ctx)
			if res == nil {
				return nil, err
			}
			return func(ctx context.Context) error { return p.CommitSlow(ctx, res) }, err
		},
		Clock:   opts.Clock,
		Policy:  opts.Policy,
		Sink:    opts.Status,
		Metrics: opts.Metrics,
	})
	return newScheduler(fast, slow)
}

func newScheduler(streams ...*Stream) *Scheduler {
	s := &Scheduler{
		streams: make(map[string]*Stream, len(streams)),
		stop:    make(chan struct{}),
	}
	for _, st := range streams {
		s.streams[st.Name()] = st
	}
	return s
}

// Start begins both streams. Blocks until Stop is called or ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	for _, st := range s.streams {
		st.Start(ctx)
	}
	slog.Info("scheduler started", "streams", len(s.streams))

	select {
	case <-s.stop:
		slog.Info("scheduler stopped")
	case <-ctx.Done():
		slog.Info("scheduler context cancelled")
	}
	for _, st := range s.streams {
		st.Stop()
	}
}

// Stop signals the scheduler to stop. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
}

// Refresh triggers a cycle on the named stream. It returns false when the
// stream is already fetching or backing off.
func (s *Scheduler) Refresh(stream string) (bool, error) {
	st, ok := s.streams[stream]
	if !ok {
		return false, fmt.Errorf("unknown stream %q", stream)
	}
	started := st.Trigger()
	slog.Info("manual refresh", "stream", stream, "started", started)
	return started, nil
}

// Status returns every stream's status keyed by name.
func (s *Scheduler) Status() map[string]model.StreamStatus {
	out := make(map[string]model.StreamStatus, len(s.streams))
	for name, st := range s.streams {
		out[name] = st.Status()
	}
	return out
}

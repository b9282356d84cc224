package republish

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/ringbridge/internal/clock"
)

// Defaults for an episode.
const (
	DefaultCycles       = 10
	DefaultInterval     = 30 * time.Second
	DefaultRestartDelay = 35 * time.Second
)

// PassFunc publishes discovery and state for every known location once.
type PassFunc func(ctx context.Context)

// Logger is the logging interface used by the scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// Options configures a Scheduler. Zero values take the defaults.
type Options struct {
	Cycles       int
	Interval     time.Duration
	RestartDelay time.Duration
	Clock        clock.Clock
	// Connected reports bus connectivity; an episode ends when it returns
	// false. Nil means always connected.
	Connected func() bool
	// OnCycle is called after every completed pass.
	OnCycle func()
}

// Scheduler runs republish episodes. Safe for concurrent use.
type Scheduler struct {
	pass PassFunc
	opts Options

	mu         sync.Mutex
	remaining  int
	episode    uint64
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	restartGen uint64
	logger     Logger

	passMu sync.Mutex
	wg     sync.WaitGroup

	// stopCtx ends pending restarts on Stop.
	stopCtx    context.Context
	stopCancel context.CancelFunc
}

// New creates a scheduler that runs pass on every cycle.
func New(pass PassFunc, opts Options) *Scheduler {
	if opts.Cycles <= 0 {
		opts.Cycles = DefaultCycles
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = DefaultRestartDelay
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Connected == nil {
		opts.Connected = func() bool { return true }
	}
	if opts.OnCycle == nil {
		opts.OnCycle = func() {}
	}
	stopCtx, stopCancel := context.WithCancel(context.Background())
	return &Scheduler{
		pass:       pass,
		opts:       opts,
		logger:     noopLogger{},
		stopCtx:    stopCtx,
		stopCancel: stopCancel,
	}
}

// SetLogger sets the logger.
func (s *Scheduler) SetLogger(logger Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// Start begins an episode, or resets the running episode's count.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.remaining = s.opts.Cycles
	if s.running {
		s.logger.Debug("republish episode reset", "episode", s.episode)
		return
	}

	s.episode++
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	s.logger.Info("republish episode started",
		"episode", s.episode,
		"cycles", s.opts.Cycles,
		"interval", s.opts.Interval.String(),
	)

	s.wg.Add(1)
	go s.run(loopCtx, s.episode, s.done)
}

// Restart ends the running episode and starts a new one after
// RestartDelay. It does not block. A later Restart supersedes an earlier
// one still pausing.
func (s *Scheduler) Restart(ctx context.Context) {
	s.mu.Lock()
	s.remaining = 0
	s.restartGen++
	gen := s.restartGen
	cancel, done := s.cancel, s.done
	running := s.running
	s.mu.Unlock()

	if running && cancel != nil {
		cancel()
	}
	s.logger.Info("republish restart requested", "delay", s.opts.RestartDelay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		pauseCtx, cancelPause := context.WithCancel(ctx)
		defer cancelPause()
		unhook := context.AfterFunc(s.stopCtx, cancelPause)
		defer unhook()

		if running && done != nil {
			<-done
		}
		if err := clock.Sleep(pauseCtx, s.opts.Clock, s.opts.RestartDelay); err != nil {
			return
		}
		s.mu.Lock()
		stale := gen != s.restartGen
		s.mu.Unlock()
		if stale {
			return
		}
		s.Start(ctx)
	}()
}

// Stop cancels the running episode and waits for all scheduler goroutines.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.remaining = 0
	s.restartGen++
	cancel := s.cancel
	s.mu.Unlock()

	s.stopCancel()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Wait blocks until no episode or pending restart remains.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Remaining returns the cycles left in the current episode.
func (s *Scheduler) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Running reports whether an episode loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context, episode uint64, done chan struct{}) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		if s.episode == episode {
			s.running = false
			s.cancel()
			s.cancel = nil
		}
		s.mu.Unlock()
		close(done)
	}()

	for {
		s.mu.Lock()
		left := s.remaining
		s.mu.Unlock()
		if left <= 0 || ctx.Err() != nil {
			return
		}
		if !s.opts.Connected() {
			s.logger.Info("republish episode paused, bus disconnected", "episode", episode)
			return
		}

		s.passMu.Lock()
		s.pass(ctx)
		s.passMu.Unlock()
		s.opts.OnCycle()

		s.mu.Lock()
		if s.remaining > 0 {
			s.remaining--
		}
		left = s.remaining
		s.mu.Unlock()
		s.logger.Debug("republish cycle complete", "episode", episode, "remaining", left)

		if left <= 0 {
			return
		}
		if err := clock.Sleep(ctx, s.opts.Clock, s.opts.Interval); err != nil {
			return
		}
	}
}

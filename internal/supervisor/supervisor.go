// Package supervisor owns the lifecycle of ordering buffers: one buffer
// (plain or partitioned) per live subscriber, torn down exactly once when
// the subscriber's Done channel closes.
package supervisor

import (
	"log/slog"
	"sync"

	"github.com/causewayio/causeway/internal/buffer"
)

// Mode selects which kind of ordering buffer a subscriber gets.
type Mode int

const (
	// ModePlain gives the subscriber a single shared window.
	ModePlain Mode = iota

	// ModePartitioned splits the subscriber's stream across latency tiers.
	ModePartitioned
)

func (m Mode) String() string {
	if m == ModePartitioned {
		return "partitioned"
	}
	return "plain"
}

// Handle is a registered subscriber's ordering buffer.
type Handle struct {
	sub  buffer.Subscriber
	ord  buffer.Ordering
	mode Mode
}

// Ordering exposes the underlying buffer for submits and flushes.
func (h *Handle) Ordering() buffer.Ordering { return h.ord }

// Mode reports which buffer kind backs the handle.
func (h *Handle) Mode() Mode { return h.mode }

// Supervisor is the buffer registry. Construct with New, hand out buffers
// with GetOrCreate, and Shutdown when the process exits.
type Supervisor struct {
	cfg     buffer.Config
	tiers   map[buffer.Tier]buffer.Config
	router  *buffer.Router
	bufOpts []buffer.Option
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]*Handle
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithConfig sets the plain-buffer config. Defaults to buffer.DefaultConfig.
func WithConfig(cfg buffer.Config) Option {
	return func(s *Supervisor) { s.cfg = cfg }
}

// WithTierConfigs sets the per-tier configs used by partitioned buffers.
func WithTierConfigs(configs map[buffer.Tier]buffer.Config) Option {
	return func(s *Supervisor) { s.tiers = configs }
}

// WithRouter sets the tier router used by partitioned buffers.
func WithRouter(r *buffer.Router) Option {
	return func(s *Supervisor) { s.router = r }
}

// WithBufferOptions forwards options (recorder, clock) to every buffer the
// supervisor creates.
func WithBufferOptions(opts ...buffer.Option) Option {
	return func(s *Supervisor) { s.bufOpts = opts }
}

// WithLogger attaches a logger; defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// New creates an empty supervisor.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:     buffer.DefaultConfig(),
		logger:  slog.Default(),
		entries: make(map[string]*Handle),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate returns the subscriber's existing buffer, or creates one in
// the requested mode and starts watching the subscriber's Done channel.
// Returns nil after Shutdown.
func (s *Supervisor) GetOrCreate(sub buffer.Subscriber, mode Mode) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if h, ok := s.entries[sub.ID()]; ok {
		return h
	}

	opts := append([]buffer.Option{buffer.WithLogger(s.logger)}, s.bufOpts...)
	h := &Handle{sub: sub, mode: mode}
	switch mode {
	case ModePartitioned:
		h.ord = buffer.NewPartitioned(sub, s.tiers, s.router, opts...)
	default:
		h.ord = buffer.New(sub, s.cfg, opts...)
	}
	s.entries[sub.ID()] = h
	s.logger.Info("subscriber registered", "subscriber", sub.ID(), "mode", mode.String())

	s.wg.Add(1)
	go s.watch(h)
	return h
}

// Remove tears down the subscriber's buffer immediately, without waiting
// for its Done channel. No-op for unknown subscribers.
func (s *Supervisor) Remove(id string) {
	if h, ok := s.take(id); ok {
		h.ord.Stop()
		s.logger.Info("subscriber removed", "subscriber", id)
	}
}

// Len reports the number of live buffers.
func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Shutdown stops every buffer and waits for all watchers to exit. No new
// buffers can be created afterwards.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.closed = true
	close(s.done)
	handles := make([]*Handle, 0, len(s.entries))
	for _, h := range s.entries {
		handles = append(handles, h)
	}
	s.entries = make(map[string]*Handle)
	s.mu.Unlock()

	for _, h := range handles {
		h.ord.Stop()
	}
	s.wg.Wait()
}

// take removes and returns the handle for id if it is still registered.
// The boolean gate is what makes teardown exactly-once when Done close,
// Remove, and Shutdown race.
func (s *Supervisor) take(id string) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	return h, ok
}

func (s *Supervisor) watch(h *Handle) {
	defer s.wg.Done()
	select {
	case <-h.sub.Done():
	case <-s.done:
		return
	}
	if _, ok := s.take(h.sub.ID()); ok {
		h.ord.Stop()
		s.logger.Info("subscriber gone, buffer torn down", "subscriber", h.sub.ID())
	}
}

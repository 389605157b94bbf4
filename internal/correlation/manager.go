// Package correlation maps outbound JSON-RPC request ids to pending
// completion handles, so a caller that sent a call over a transport can
// await the matching response wherever and whenever it arrives.
//
// Grounded on golang-tools' jsonrpc2.Conn: a concurrent pending map keyed
// by id, register-before-send, and "the send failed so don't leave it
// pending" cleanup. That reference relies entirely on the caller's own
// ctx.Done() for timeouts; this package adds a deadline-driven background
// sweep decoupled from any one caller, and guards the pending-map lookup
// before completing a response so a late or unknown id can never panic on
// a nil channel send.
package correlation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mcpcore/mcpcore/pkg/jsonrpc"
)

// Config controls capacity, default timeout, and sweep cadence.
type Config struct {
	// MaxPendingRequests bounds concurrent in-flight registrations.
	MaxPendingRequests int

	// DefaultTimeout is used when RegisterRequest is called with a
	// zero timeout.
	DefaultTimeout time.Duration

	// CleanupInterval is how often the background sweep scans for
	// expired entries.
	CleanupInterval time.Duration
}

type pendingEntry struct {
	id         jsonrpc.ID
	ch         chan Outcome
	deadline   time.Time
	registered time.Time
	payload    []byte
	completed  bool
}

// Manager is the correlation engine described in this package's doc
// comment. The zero value is not usable; construct with NewManager.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingEntry
	seq     int64
	closed  bool

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// NewManager creates a Manager and starts its background sweep goroutine.
// Callers must call Shutdown to stop the sweep and release every pending
// handle.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Second
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg:       cfg,
		logger:    logger,
		pending:   make(map[string]*pendingEntry),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// RegisterRequest allocates a fresh request id, stores a pending entry,
// and returns a handle the caller awaits for the eventual response. The id
// is drawn from a private monotonic counter so it can never collide with
// an externally supplied id reflected back from the other end.
func (m *Manager) RegisterRequest(timeout time.Duration, payload []byte) (jsonrpc.ID, *CompletionHandle, error) {
	if timeout <= 0 {
		timeout = m.cfg.DefaultTimeout
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return jsonrpc.ID{}, nil, ErrShutdown
	}
	if m.cfg.MaxPendingRequests > 0 && len(m.pending) >= m.cfg.MaxPendingRequests {
		return jsonrpc.ID{}, nil, ErrCapacityExceeded
	}

	m.seq++
	id := jsonrpc.Int64ID(m.seq)
	now := time.Now()
	entry := &pendingEntry{
		id:         id,
		ch:         make(chan Outcome, 1),
		deadline:   now.Add(timeout),
		registered: now,
		payload:    payload,
	}
	m.pending[id.String()] = entry

	return id, &CompletionHandle{id: id, mgr: m, ch: entry.ch}, nil
}

// CorrelateResponse wakes the pending completion registered under id.
// Returns ErrRequestNotFound if id is unknown (late response, or the
// caller already cancelled it), ErrAlreadyCompleted if a concurrent
// timeout or cancel already consumed the slot.
func (m *Manager) CorrelateResponse(id jsonrpc.ID, resp *jsonrpc.Response, respErr error) error {
	entry, err := m.claim(id)
	if err != nil {
		return err
	}
	entry.ch <- Outcome{Response: resp, Err: respErr}
	close(entry.ch)
	return nil
}

// Cancel completes the handle registered under id with ErrCancelled. It is
// idempotent: cancelling an id that is unknown or already completed is a
// no-op, matching the public contract's cancel() semantics.
func (m *Manager) Cancel(id jsonrpc.ID) {
	entry, err := m.claim(id)
	if err != nil {
		return
	}
	entry.ch <- Outcome{Err: ErrCancelled}
	close(entry.ch)
}

// PendingCount returns the number of requests currently awaiting
// completion. Observational; consistent with registrations that have
// already returned. Entries already claimed by a completion but not yet
// purged by the next sweep tick (see claim) don't count as pending.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.pending {
		if !e.completed {
			n++
		}
	}
	return n
}

// Shutdown completes every outstanding handle with ErrShutdown, refuses
// further registrations, and stops the sweep goroutine. Safe to call more
// than once.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	entries := make([]*pendingEntry, 0, len(m.pending))
	for key, e := range m.pending {
		if !e.completed {
			e.completed = true
			entries = append(entries, e)
		}
		delete(m.pending, key)
	}
	close(m.stopSweep)
	m.mu.Unlock()

	for _, e := range entries {
		e.ch <- Outcome{Err: ErrShutdown}
		close(e.ch)
	}
	<-m.sweepDone
}

// claim marks id's entry completed under lock and returns it, or an error:
// ErrRequestNotFound if the id was never registered (or was already swept
// away), ErrAlreadyCompleted if a prior completion (response, cancel, or
// sweep timeout) already claimed it and is still awaiting cleanup. This is
// the single choke point every completion path goes through, so at most
// one of them ever sends on entry.ch — the entry itself stays in m.pending
// one extra sweep tick after being claimed, purely so a racing duplicate
// completion can observe ErrAlreadyCompleted instead of ErrRequestNotFound.
func (m *Manager) claim(id jsonrpc.ID) (*pendingEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.pending[id.String()]
	if !ok {
		return nil, ErrRequestNotFound
	}
	if entry.completed {
		return nil, ErrAlreadyCompleted
	}
	entry.completed = true
	return entry, nil
}

func (m *Manager) sweepLoop() {
	defer close(m.sweepDone)
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopSweep:
			return
		case now := <-ticker.C:
			m.sweepExpired(now)
		}
	}
}

// sweepExpired does two things on each tick: claims any entry whose
// deadline has passed and times it out, and purges any entry already
// claimed by a prior completion — deferred by one tick (rather than
// deleted the moment it's claimed) so a late duplicate completion racing
// it still finds the entry and gets ErrAlreadyCompleted.
func (m *Manager) sweepExpired(now time.Time) {
	m.mu.Lock()
	var timedOut []*pendingEntry
	for key, e := range m.pending {
		switch {
		case e.completed:
			delete(m.pending, key)
		case now.After(e.deadline):
			e.completed = true
			timedOut = append(timedOut, e)
		}
	}
	m.mu.Unlock()

	if len(timedOut) == 0 {
		return
	}
	for _, e := range timedOut {
		e.ch <- Outcome{Err: ErrTimeout}
		close(e.ch)
	}
	m.logger.Debug("correlation: swept expired pending requests", "count", len(timedOut))
}

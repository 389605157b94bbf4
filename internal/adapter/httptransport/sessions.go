package httptransport

import (
	"context"
	"sync"
	"time"

	"github.com/mcpcore/mcpcore/internal/adapter/outbound/memory"
	domainauth "github.com/mcpcore/mcpcore/internal/domain/auth"
	"github.com/mcpcore/mcpcore/internal/domain/session"
	"github.com/mcpcore/mcpcore/internal/mcpproto"
)

// anonymousIdentity stands in for the caller when a session is minted by an
// unauthenticated "initialize" call (dev mode, or a permissive Policy) —
// session.SessionService.Create requires a non-nil identity to attribute
// the session to.
var anonymousIdentity = &domainauth.Identity{ID: "anonymous", Name: "anonymous"}

// sweepInterval is how often the sessionManager checks its tracked
// mcpproto.Session entries against session.SessionService for expiry.
const sweepInterval = 1 * time.Minute

// sessionManager owns the one mcpproto.Session per Mcp-Session-Id the
// Streamable HTTP transport multiplexes onto a single *http.Server, paired
// with a session.SessionService that tracks each one's idle timeout.
// Grounded on the reference's sessionRegistry (internal/adapter/inbound/
// http/handler.go), which played the same per-session-map role for SSE
// fan-out; generalized here to also hold the protocol state machine itself,
// since this transport no longer has a *service.ProxyService to delegate
// protocol state to. The idle-timeout sweep itself mirrors
// internal/correlation.Manager's sweepLoop (register once, expire on a
// ticker) applied to sessions instead of pending RPC requests.
type sessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*mcpproto.Session
	sse      map[string][]chan []byte

	svc       *session.SessionService
	store     *memory.MemorySessionStore
	stopSweep chan struct{}
	stopOnce  sync.Once
	sweepWG   sync.WaitGroup
}

func newSessionManager(timeout time.Duration) *sessionManager {
	store := memory.NewSessionStore()
	return &sessionManager{
		sessions:  make(map[string]*mcpproto.Session),
		sse:       make(map[string][]chan []byte),
		svc:       session.NewSessionService(store, session.Config{Timeout: timeout}),
		store:     store,
		stopSweep: make(chan struct{}),
	}
}

// startSweep launches the background goroutines that enforce
// config.Server.SessionTimeout: the store's own cleanup (which prunes its
// session.Session records) and this manager's sweep (which closes the
// corresponding mcpproto.Session/SSE state once its record is gone).
func (m *sessionManager) startSweep(ctx context.Context) {
	m.store.StartCleanup(ctx)

	m.sweepWG.Add(1)
	go func() {
		defer m.sweepWG.Done()
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopSweep:
				return
			case <-ticker.C:
				m.sweepExpired()
			}
		}
	}()
}

// sweepExpired terminates every tracked mcpproto.Session whose
// session.Session record has expired (or already been pruned by the
// store's own cleanup goroutine).
func (m *sessionManager) sweepExpired() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	ctx := context.Background()
	for _, id := range ids {
		if _, err := m.svc.Get(ctx, id); err != nil {
			m.terminate(id)
		}
	}
}

// mint creates a fresh session.Session (attributing it to identity, or
// anonymousIdentity when unauthenticated) and binds it to a new
// mcpproto.Session, returning the minted Mcp-Session-Id.
func (m *sessionManager) mint(ctx context.Context, identity *domainauth.Identity, newSession func() *mcpproto.Session) (string, *mcpproto.Session, error) {
	if identity == nil {
		identity = anonymousIdentity
	}
	domSess, err := m.svc.Create(ctx, identity)
	if err != nil {
		return "", nil, err
	}

	sess := newSession()
	m.mu.Lock()
	m.sessions[domSess.ID] = sess
	m.mu.Unlock()

	return domSess.ID, sess, nil
}

// touch extends id's idle timeout and reports whether it is still valid.
// A false result means the session expired (or was never minted); the
// caller should treat id as unknown.
func (m *sessionManager) touch(ctx context.Context, id string) bool {
	if err := m.svc.Refresh(ctx, id); err != nil {
		m.terminate(id)
		return false
	}
	return true
}

func (m *sessionManager) get(id string) (*mcpproto.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// terminate closes the session's protocol state and its SSE channels,
// removes its session.Session record, and reports whether the session
// existed.
func (m *sessionManager) terminate(id string) bool {
	m.mu.Lock()
	s, exists := m.sessions[id]
	if exists {
		s.Close()
		delete(m.sessions, id)
	}

	channels, hadSSE := m.sse[id]
	for _, ch := range channels {
		close(ch)
	}
	delete(m.sse, id)
	m.mu.Unlock()

	_ = m.svc.Delete(context.Background(), id)

	return exists || hadSSE
}

func (m *sessionManager) registerSSE(id string, ch chan []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sse[id] = append(m.sse[id], ch)
}

func (m *sessionManager) unregisterSSE(id string, ch chan []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	channels := m.sse[id]
	for i, c := range channels {
		if c == ch {
			m.sse[id] = append(channels[:i], channels[i+1:]...)
			break
		}
	}
	if len(m.sse[id]) == 0 {
		delete(m.sse, id)
	}
}

// closeAll closes every SSE channel and every session's protocol state,
// stops the idle-timeout sweep and the store's cleanup goroutine, used
// during transport shutdown.
func (m *sessionManager) closeAll() {
	m.stopOnce.Do(func() { close(m.stopSweep) })
	m.sweepWG.Wait()
	m.store.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, channels := range m.sse {
		for _, ch := range channels {
			close(ch)
		}
	}
	m.sse = make(map[string][]chan []byte)
	for _, s := range m.sessions {
		s.Close()
	}
	m.sessions = make(map[string]*mcpproto.Session)
}

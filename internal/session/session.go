package session

import (
	"sync"

	"lanread/internal/events"
	"lanread/internal/workspace"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// Manager holds the workspace bearer credential and the remote-ready flag.
// It is the only writer of both; the client and processor read them through
// the TokenSource and ReadyChecker interfaces.
type Manager struct {
	mu      sync.RWMutex
	token   *oauth2.Token
	ready   bool
	bus     *events.EventBus
	logger  zerolog.Logger
	onReady func()
}

func NewManager(bus *events.EventBus, logger *zerolog.Logger) *Manager {
	return &Manager{
		bus:    bus,
		logger: logger.With().Str("component", "session").Logger(),
	}
}

// OnReady registers the callback fired when a credential is (re)established,
// typically the processor's NotifyRemoteReady.
func (m *Manager) OnReady(fn func()) {
	m.mu.Lock()
	m.onReady = fn
	m.mu.Unlock()
}

// Token returns the current access token. Implements workspace.TokenSource.
func (m *Manager) Token() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.ready || m.token == nil || !m.token.Valid() {
		return "", workspace.ErrNoCredential
	}
	return m.token.AccessToken, nil
}

// Ready reports whether the remote side can be called.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready && m.token != nil && m.token.Valid()
}

// SetToken installs a fresh credential, marks the session ready, and fires
// the ready callback.
func (m *Manager) SetToken(token *oauth2.Token) {
	m.mu.Lock()
	m.token = token
	m.ready = token != nil && token.Valid()
	ready := m.ready
	fn := m.onReady
	m.mu.Unlock()

	if ready {
		m.logger.Info().Msg("Workspace credential established")
		if fn != nil {
			fn()
		}
	}
}

// Disconnect severs the workspace link entirely: the credential is dropped
// and the disconnected event tells listeners to wipe derived state
// (page mappings, sync config). Reconnecting afterwards starts from scratch.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.token = nil
	m.ready = false
	m.mu.Unlock()

	m.logger.Info().Msg("Workspace disconnected")
	_ = m.bus.PublishJSON(events.EventWorkspaceDisconnected, struct{}{})
}

// Invalidate drops readiness after the remote rejected the credential. It
// stays false until a new token is installed via SetToken. Publishes the
// credential-expired event so the UI can prompt for reconnection.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	wasReady := m.ready
	m.ready = false
	m.mu.Unlock()

	if wasReady {
		m.logger.Warn().Msg("Workspace credential expired")
		_ = m.bus.PublishJSON(events.EventCredentialExpired, struct{}{})
	}
}

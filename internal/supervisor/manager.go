package supervisor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/GriffinCanCode/AgentOS/agentio/internal/bridge"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/shared/id"
	"go.uber.org/zap"
)

// Manager keeps every session the process supervises.
type Manager struct {
	opts     Options
	log      *zap.Logger
	sessions sync.Map // map[id.SessionID]*Session
}

// NewManager creates an empty manager.
func NewManager(opts Options) *Manager {
	opts = opts.withDefaults()
	return &Manager{opts: opts, log: opts.Logger.Named("manager")}
}

// Create registers a new idle session that delivers to sink.
func (m *Manager) Create(sink bridge.Sink, onCapture func(agentID string)) *Session {
	s := newSession(id.NewSessionID(), sink, m.opts, onCapture)
	m.sessions.Store(s.ID(), s)
	m.log.Debug("Session created", zap.String("session", s.ID().String()))
	return s
}

// Get returns a session by ID.
func (m *Manager) Get(sid id.SessionID) (*Session, error) {
	value, ok := m.sessions.Load(sid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sid)
	}
	return value.(*Session), nil
}

// List returns a snapshot of every session, oldest first.
func (m *Manager) List() []Info {
	var infos []Info
	m.sessions.Range(func(_, value any) bool {
		infos = append(infos, value.(*Session).Info())
		return true
	})
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Abort tears down a session's current run.
func (m *Manager) Abort(sid id.SessionID) ([]StepResult, error) {
	s, err := m.Get(sid)
	if err != nil {
		return nil, err
	}
	return s.Abort(), nil
}

// Remove tears a session down with reason and forgets it.
func (m *Manager) Remove(sid id.SessionID, reason string) {
	value, ok := m.sessions.LoadAndDelete(sid)
	if !ok {
		return
	}
	value.(*Session).Teardown(reason)
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	n := 0
	m.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// CloseAll tears down every session in parallel and waits until they are
// closed or ctx ends.
func (m *Manager) CloseAll(ctx context.Context) error {
	var wg sync.WaitGroup
	m.sessions.Range(func(key, value any) bool {
		m.sessions.Delete(key)
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Teardown(ReasonShutdown)
		}(value.(*Session))
		return true
	})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close sessions: %w", ctx.Err())
	}
}

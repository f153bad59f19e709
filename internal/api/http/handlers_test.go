package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/agentio/internal/bridge"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/launch"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/pipeline"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/supervisor"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shellResolver struct{}

func (shellResolver) Executable() (string, error) { return "/bin/sh", nil }

func (shellResolver) WorkDir(string) (string, error) { return os.TempDir(), nil }

var discard = bridge.SinkFunc(func(context.Context, pipeline.Record) error { return nil })

func setup(t *testing.T, args ...string) (*gin.Engine, *supervisor.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	metrics := monitoring.NewMetrics()
	manager := supervisor.NewManager(supervisor.Options{
		Resolver:      shellResolver{},
		HeadlessArgs:  args,
		PollTimeout:   100 * time.Millisecond,
		TeardownGrace: 500 * time.Millisecond,
		Metrics:       metrics,
	})
	t.Cleanup(func() { _ = manager.CloseAll(context.Background()) })

	h := NewHandlers(manager, metrics, nil)
	router := gin.New()
	router.GET("/health", h.Health)
	router.GET("/metrics", h.Metrics())
	router.GET("/sessions", h.ListSessions)
	router.GET("/sessions/:id", h.GetSession)
	router.POST("/sessions/:id/abort", h.AbortSession)
	router.DELETE("/sessions/:id", h.RemoveSession)
	return router, manager
}

func do(router *gin.Engine, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var body map[string]any
	_ = sonic.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestHealth(t *testing.T) {
	router, manager := setup(t)
	manager.Create(discard, nil)

	w, body := do(router, "GET", "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 1, body["sessions"])
}

func TestListAndGetSessions(t *testing.T) {
	router, manager := setup(t)

	w, body := do(router, "GET", "/sessions")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["sessions"])

	first := manager.Create(discard, nil)
	manager.Create(discard, nil)

	_, body = do(router, "GET", "/sessions")
	sessions, ok := body["sessions"].([]any)
	require.True(t, ok)
	require.Len(t, sessions, 2)
	assert.Equal(t, first.ID().String(), sessions[0].(map[string]any)["id"])

	w, body = do(router, "GET", "/sessions/"+first.ID().String())
	assert.Equal(t, http.StatusOK, w.Code)
	session := body["session"].(map[string]any)
	assert.Equal(t, "idle", session["state"])
}

func TestGetSessionErrors(t *testing.T) {
	router, _ := setup(t)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"malformed id", "/sessions/nope", http.StatusBadRequest},
		{"unknown id", "/sessions/sess_01ARZ3NDEKTSV4RRFFQ69G5FAV", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := do(router, "GET", tt.path)
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestAbortSession(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	router, manager := setup(t, "-c", "sleep 30")
	sess := manager.Create(discard, nil)
	require.NoError(t, sess.Start(context.Background(), supervisor.StartRequest{Mode: launch.ModeHeadless}))

	w, body := do(router, "POST", "/sessions/"+sess.ID().String()+"/abort")
	assert.Equal(t, http.StatusOK, w.Code)
	steps := body["steps"].([]any)
	require.Len(t, steps, 6)
	assert.Equal(t, "stop", steps[0].(map[string]any)["step"])
	assert.Equal(t, "closed", body["session"].(map[string]any)["state"])
	assert.Equal(t, 1, manager.Len())

	// Aborting an idle run reports no steps.
	_, body = do(router, "POST", "/sessions/"+sess.ID().String()+"/abort")
	assert.Empty(t, body["steps"])
}

func TestRemoveSession(t *testing.T) {
	router, manager := setup(t)
	sess := manager.Create(discard, nil)

	w, _ := do(router, "DELETE", "/sessions/"+sess.ID().String())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, manager.Len())

	w, _ = do(router, "DELETE", "/sessions/"+sess.ID().String())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := setup(t)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "agentio_sessions_active")
}

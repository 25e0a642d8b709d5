package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/gaia-upgrader/internal/api/middleware"
	"github.com/taoyao-code/gaia-upgrader/internal/upgrade"
)

type fakeController struct {
	mu       sync.Mutex
	status   upgrade.Status
	resolved []upgrade.DecisionKind
	accepts  []bool
	aborts   int
}

func (f *fakeController) Status() upgrade.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeController) Resolve(kind upgrade.DecisionKind, accept bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, kind)
	f.accepts = append(f.accepts, accept)
}

func (f *fakeController) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts++
}

func newRouter(ctl Controller, auth middleware.AuthConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterUpgradeRoutes(r, ctl, auth, zap.NewNop())
	return r
}

func do(r http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestUpgradeHandler_Status(t *testing.T) {
	ctl := &fakeController{status: upgrade.Status{SessionID: "s-1", State: upgrade.StateRunning, Phase: "Data transfer", Offset: 500, Total: 1000, Percent: 50}}
	r := newRouter(ctl, middleware.AuthConfig{})

	rr := do(r, http.MethodGet, "/api/upgrade/status", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var st upgrade.Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	assert.Equal(t, ctl.status, st)
}

func TestUpgradeHandler_Decide(t *testing.T) {
	ctl := &fakeController{status: upgrade.Status{State: upgrade.StateAwaitingDecision, Awaiting: "commit"}}
	r := newRouter(ctl, middleware.AuthConfig{})

	t.Run("提交决策", func(t *testing.T) {
		rr := do(r, http.MethodPost, "/api/upgrade/decision", `{"decision":"commit","accept":false}`, nil)
		assert.Equal(t, http.StatusAccepted, rr.Code)
		assert.Equal(t, []upgrade.DecisionKind{upgrade.DecisionCommit}, ctl.resolved)
		assert.Equal(t, []bool{false}, ctl.accepts)
	})

	t.Run("缺少accept", func(t *testing.T) {
		rr := do(r, http.MethodPost, "/api/upgrade/decision", `{"decision":"commit"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("未知决策", func(t *testing.T) {
		rr := do(r, http.MethodPost, "/api/upgrade/decision", `{"decision":"reboot","accept":true}`, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("决策未在等待", func(t *testing.T) {
		rr := do(r, http.MethodPost, "/api/upgrade/decision", `{"decision":"transfer_complete","accept":true}`, nil)
		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Len(t, ctl.resolved, 1)
	})
}

func TestUpgradeHandler_Abort(t *testing.T) {
	ctl := &fakeController{status: upgrade.Status{State: upgrade.StateIdle}}
	r := newRouter(ctl, middleware.AuthConfig{})

	rr := do(r, http.MethodPost, "/api/upgrade/abort", "", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Zero(t, ctl.aborts)

	ctl.mu.Lock()
	ctl.status.State = upgrade.StateReconnecting
	ctl.mu.Unlock()
	rr = do(r, http.MethodPost, "/api/upgrade/abort", "", nil)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, 1, ctl.aborts)
}

func TestUpgradeRoutes_Auth(t *testing.T) {
	ctl := &fakeController{status: upgrade.Status{State: upgrade.StateIdle}}
	r := newRouter(ctl, middleware.AuthConfig{Enabled: true, APIKeys: []string{"sk_test_abcdef123"}})

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"缺少密钥", nil, http.StatusUnauthorized},
		{"错误密钥", map[string]string{"X-API-Key": "sk_wrong"}, http.StatusForbidden},
		{"X-API-Key", map[string]string{"X-API-Key": "sk_test_abcdef123"}, http.StatusOK},
		{"Bearer", map[string]string{"Authorization": "Bearer sk_test_abcdef123"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(r, http.MethodGet, "/api/upgrade/status", "", tt.header)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

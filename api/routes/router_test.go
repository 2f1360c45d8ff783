package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/handoffdesk-backend/api/controllers"
	"github.com/angelmondragon/handoffdesk-backend/internal/assignments"
	"github.com/angelmondragon/handoffdesk-backend/internal/conversations"
	"github.com/angelmondragon/handoffdesk-backend/internal/lifecycle"
	"github.com/angelmondragon/handoffdesk-backend/internal/routing"
	pkgAuth "github.com/angelmondragon/handoffdesk-backend/pkg/auth"
	"github.com/angelmondragon/handoffdesk-backend/pkg/config"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db/dbtest"
	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
	"github.com/angelmondragon/handoffdesk-backend/pkg/logger"
	"github.com/angelmondragon/handoffdesk-backend/pkg/metrics"
	"github.com/angelmondragon/handoffdesk-backend/pkg/outbox"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type recordingEnqueuer struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (r *recordingEnqueuer) EnqueueRunAgent(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return nil
}

type apiHarness struct {
	t        *testing.T
	conn     *gorm.DB
	handler  http.Handler
	enqueuer *recordingEnqueuer
	operator uuid.UUID
	token    string
}

func newAPIHarness(t *testing.T, ready map[string]controllers.Pinger) *apiHarness {
	t.Helper()
	client := dbtest.Open(t)
	conn := client.DB()
	logg := logger.New(logger.Options{ServiceName: "api-test", Output: io.Discard})
	reg := prometheus.NewRegistry()
	m := metrics.NewRoutingMetrics(reg)

	lifecycleRepo := lifecycle.NewRepository(conn)
	machine, err := lifecycle.NewMachine(client, lifecycleRepo, outbox.NewService(outbox.NewRepository(conn), logg), m, logg)
	require.NoError(t, err)

	enqueuer := &recordingEnqueuer{}
	convSvc, err := conversations.NewService(conversations.ServiceParams{
		TxRunner: client, Repo: conversations.NewRepository(conn), History: lifecycleRepo,
		Machine: machine, Enqueuer: enqueuer, Logger: logg,
	})
	require.NoError(t, err)
	assignSvc, err := assignments.NewService(assignments.ServiceParams{
		TxRunner: client, Repo: assignments.NewRepository(conn), Machine: machine,
		Enqueuer: enqueuer, Metrics: m, Logger: logg,
	})
	require.NoError(t, err)

	cfg := &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "handoffdesk", ExpirationMinutes: 10},
	}
	operator := uuid.New()
	token, err := pkgAuth.Mint(cfg.JWT, time.Now(), pkgAuth.Operator{ID: operator})
	require.NoError(t, err)

	handler := NewRouter(Deps{
		Config:        cfg,
		Logger:        logg,
		Ready:         ready,
		Gatherer:      reg,
		Conversations: convSvc,
		Queues:        routing.NewRepository(conn),
		Assignments:   assignSvc,
	})
	return &apiHarness{t: t, conn: conn, handler: handler, enqueuer: enqueuer, operator: operator, token: token}
}

func (h *apiHarness) do(method, path string, body any) (int, map[string]any) {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+h.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "expected object data in %v", body)
	return d
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHealthEndpoints(t *testing.T) {
	h := newAPIHarness(t, map[string]controllers.Pinger{"db": stubPinger{}, "redis": nil})

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-HandoffDesk-Env"))

	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newAPIHarness(t, map[string]controllers.Pinger{"rabbitmq": stubPinger{err: errors.New("closed")}})
	rec = httptest.NewRecorder()
	down.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpointIsPublic(t *testing.T) {
	h := newAPIHarness(t, nil)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRequiresBearerToken(t *testing.T) {
	h := newAPIHarness(t, nil)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/queues", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConversationIntakeRoutes(t *testing.T) {
	h := newAPIHarness(t, nil)

	status, body := h.do(http.MethodPost, "/api/v1/conversations", map[string]any{
		"requester_id": "cust-9",
		"channel":      "web",
		"message":      "where is my refund?",
	})
	require.Equal(t, http.StatusCreated, status, body)
	conv := data(t, body)
	assert.Equal(t, "new", conv["status"])
	convID := conv["id"].(string)
	require.Len(t, h.enqueuer.ids, 1)

	status, body = h.do(http.MethodPost, "/api/v1/conversations/"+convID+"/messages", map[string]any{
		"sender_type": "human",
		"content":     "looking into it",
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, h.operator.String(), data(t, body)["author_id"])

	status, body = h.do(http.MethodGet, "/api/v1/conversations/"+convID+"/messages?limit=1", nil)
	require.Equal(t, http.StatusOK, status)
	page := data(t, body)
	assert.Len(t, page["items"], 1)
	assert.NotEmpty(t, page["next_cursor"])

	status, body = h.do(http.MethodGet, "/api/v1/conversations/"+convID+"/transitions", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"agent_begins"}, data(t, body)["allowed"])

	status, body = h.do(http.MethodPost, "/api/v1/conversations/"+convID+"/archive", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "TRANSITION_NOT_ALLOWED", errorCode(body))
}

func TestConversationRouteValidation(t *testing.T) {
	h := newAPIHarness(t, nil)

	status, body := h.do(http.MethodPost, "/api/v1/conversations", map[string]any{"channel": "web"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(body))

	status, _ = h.do(http.MethodGet, "/api/v1/conversations/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = h.do(http.MethodGet, "/api/v1/conversations/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestOperatorWorkflowRoutes(t *testing.T) {
	h := newAPIHarness(t, nil)
	conv := dbtest.SeedConversation(t, h.conn, enums.ConversationQueued)
	queue := dbtest.SeedQueue(t, h.conn, "billing", true, "billing")
	item := dbtest.SeedQueueItem(t, h.conn, queue.ID, conv.ID, enums.QueueItemQueued)

	status, body := h.do(http.MethodGet, "/api/v1/queues", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, body = h.do(http.MethodGet, "/api/v1/queues/"+queue.ID.String()+"/items?state=queued", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, data(t, body)["items"], 1)

	claimPath := "/api/v1/queues/" + queue.ID.String() + "/items/" + item.ID.String() + "/claim"
	status, body = h.do(http.MethodPost, claimPath, nil)
	require.Equal(t, http.StatusCreated, status, body)
	assignment := data(t, body)
	assert.Equal(t, "assigned", assignment["status"])
	assert.Equal(t, h.operator.String(), assignment["user_id"])
	assignmentID := assignment["id"].(string)

	status, body = h.do(http.MethodPost, claimPath, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", errorCode(body))

	status, body = h.do(http.MethodGet, "/api/v1/assignments", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, _ = h.do(http.MethodPost, "/api/v1/assignments/"+assignmentID+"/accept", nil)
	require.Equal(t, http.StatusOK, status)

	status, body = h.do(http.MethodPost, "/api/v1/assignments/"+assignmentID+"/resolve", map[string]any{"summary": "refunded"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "resolved", data(t, body)["status"])

	status, body = h.do(http.MethodPost, "/api/v1/conversations/"+conv.ID.String()+"/archive", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "archived", data(t, body)["status"])

	status, body = h.do(http.MethodGet, "/api/v1/conversations/"+conv.ID.String()+"/audit-events", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 4)
}

func TestReleaseRouteSchedulesAgentRun(t *testing.T) {
	h := newAPIHarness(t, nil)
	conv := dbtest.SeedConversation(t, h.conn, enums.ConversationHumanWorking)
	queue := dbtest.SeedQueue(t, h.conn, "general", true)
	item := dbtest.SeedQueueItem(t, h.conn, queue.ID, conv.ID, enums.QueueItemHot)
	a := dbtest.SeedAssignment(t, h.conn, conv.ID, queue.ID, &item.ID, h.operator, enums.AssignmentHumanWorking)

	status, body := h.do(http.MethodPost, "/api/v1/assignments/"+a.ID.String()+"/release", map[string]any{"reason": "customer asked for bot"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "released", data(t, body)["status"])
	assert.Equal(t, []uuid.UUID{conv.ID}, h.enqueuer.ids)
}

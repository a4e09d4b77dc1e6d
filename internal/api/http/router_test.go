package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/api/http/handlers"
	"github.com/spec-kit/ticket-workflow/internal/auth"
	"github.com/spec-kit/ticket-workflow/internal/blob"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/idempotency"
	"github.com/spec-kit/ticket-workflow/internal/notification"
	"github.com/spec-kit/ticket-workflow/internal/observability"
	"github.com/spec-kit/ticket-workflow/internal/persistence"
	"github.com/spec-kit/ticket-workflow/internal/repository/memstore"
	"github.com/spec-kit/ticket-workflow/internal/service"
	"github.com/spec-kit/ticket-workflow/internal/workflow"
)

var (
	clientActor = domain.Actor{ID: "u-client", Role: domain.RoleClient}
	leadActor   = domain.Actor{ID: "u-lead", Role: domain.RoleCATeamLead}
	caActor     = domain.Actor{ID: "u-ca", Role: domain.RoleCareerAssociate}
	ceoActor    = domain.Actor{ID: "u-ceo", Role: domain.RoleCEO}
	scrapeActor = domain.Actor{ID: "u-scrape", Role: domain.RoleScrapingTeam}
)

type testServer struct {
	app     *fiber.App
	store   *memstore.Store
	tokens  *auth.TokenManager
	metrics *observability.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	feed := events.NewInMemoryFeed(logger)
	store := memstore.New(memstore.WithFeed(feed))
	for _, a := range []domain.Actor{clientActor, leadActor, caActor, ceoActor, scrapeActor} {
		store.PutUser(domain.User{ID: a.ID, Name: a.ID, Email: a.ID + "@example.com", Role: a.Role})
	}
	store.PutClient(domain.Client{ID: "client-1", Name: "Jane", Email: "jane@example.com",
		CareerAssociateID: caActor.ID, CareerAssociateManagerID: leadActor.ID})

	blobs := blob.NewMemory("http://files.test")
	metrics := observability.NewMetrics()
	notifier := service.NewNotificationService(service.NotificationDependencies{
		Directory: store.Directory(),
		Sender:    notification.NewLogSender(logger),
	})
	engine := workflow.NewEngine(workflow.EngineDependencies{
		Store:    store,
		Blobs:    blobs,
		Notifier: notifier,
		Ledger:   idempotency.NewMemoryLedger(time.Hour),
		Metrics:  metrics,
		Logger:   logger,
	})
	board := service.NewBoard(store, feed, logger)
	require.NoError(t, board.Start(testContext(t)))

	tokens := auth.NewTokenManager("test-secret", 5)
	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health: handlers.NewHealthHandler("ticket-workflow", "test", map[string]handlers.Dependency{
			"postgres": &persistence.Postgres{},
			"redis":    &persistence.Redis{},
		}),
		Tickets: handlers.NewTicketsHandler(handlers.TicketsHandlerDependencies{
			Tickets: service.NewTicketService(service.TicketDependencies{Store: store, Blobs: blobs, Notifier: notifier, Logger: logger}),
			Board:   board,
			Engine:  engine,
			Blobs:   blobs,
		}),
		Users:          handlers.NewUsersHandler(store.Directory()),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, store.Directory()),
	})
	return &testServer{app: app, store: store, tokens: tokens, metrics: metrics}
}

func (s *testServer) do(t *testing.T, actor *domain.Actor, method, path string, body any, headers ...string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		token, _, err := s.tokens.GenerateToken(*actor)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), string(raw))
	}
	return resp.StatusCode, decoded
}

func (s *testServer) createTicket(t *testing.T, assignees ...string) string {
	t.Helper()
	status, body := s.do(t, &clientActor, nethttp.MethodPost, "/tickets", map[string]any{
		"type":         "volume_shortfall",
		"client_id":    "client-1",
		"title":        "Not enough applications",
		"assignee_ids": assignees,
		"files": []map[string]string{{
			"name": "screenshot.png",
			"data": base64.StdEncoding.EncodeToString([]byte("png")),
		}},
	})
	require.Equal(t, nethttp.StatusCreated, status, body)
	data := body["data"].(map[string]any)
	files := data["files"].([]any)
	require.Len(t, files, 1)
	assert.Contains(t, files[0].(map[string]any)["url"], "http://files.test/tickets/")
	return data["ticket"].(map[string]any)["id"].(string)
}

func errorCode(body map[string]any) string {
	e, ok := body["error"].(map[string]any)
	if !ok {
		return ""
	}
	code, _ := e["code"].(string)
	return code
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, nil, nethttp.MethodGet, "/health/live", nil)
	assert.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = s.do(t, nil, nethttp.MethodGet, "/health/ready", nil)
	assert.Equal(t, nethttp.StatusOK, status)
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, "in-memory", deps["postgres"])
}

func TestTicketsRequireAuthentication(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, nil, nethttp.MethodGet, "/tickets", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	ghost := domain.Actor{ID: "u-ghost", Role: domain.RoleCEO}
	status, _ = s.do(t, &ghost, nethttp.MethodGet, "/tickets", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
}

func TestCreateRequiresCreatorRole(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, &scrapeActor, nethttp.MethodPost, "/tickets", map[string]any{
		"type": "volume_shortfall", "client_id": "client-1", "title": "x",
	})
	assert.Equal(t, nethttp.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))
}

func TestCreateRejectsBadBase64(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, &clientActor, nethttp.MethodPost, "/tickets", map[string]any{
		"type": "volume_shortfall", "client_id": "client-1", "title": "x",
		"files": []map[string]string{{"name": "a.txt", "data": "%%%"}},
	})
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}

func TestListAndDetailFollowAssignments(t *testing.T) {
	s := newTestServer(t)
	id := s.createTicket(t, leadActor.ID)

	status, body := s.do(t, &leadActor, nethttp.MethodGet, "/tickets", nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.EqualValues(t, 1, body["total"])

	status, body = s.do(t, &caActor, nethttp.MethodGet, "/tickets", nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.EqualValues(t, 0, body["total"])

	status, body = s.do(t, &caActor, nethttp.MethodGet, "/tickets/"+id, nil)
	assert.Equal(t, nethttp.StatusForbidden, status)
	assert.Equal(t, "PERMISSION_DENIED", errorCode(body))

	status, body = s.do(t, &ceoActor, nethttp.MethodGet, "/tickets/"+id, nil)
	require.Equal(t, nethttp.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, "open", data["status"])
	assert.Len(t, data["files"], 1)
	assert.Len(t, data["assignees"], 2)
}

func TestActionFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	id := s.createTicket(t, leadActor.ID)
	path := "/tickets/" + id + "/actions/"

	status, body := s.do(t, &leadActor, nethttp.MethodPost, path+"close", map[string]any{
		"idempotency_key": uuid.NewString(),
		"comment":         "  ",
	})
	assert.Equal(t, nethttp.StatusUnprocessableEntity, status)
	assert.Equal(t, "PRECONDITION_FAILED", errorCode(body))

	key := uuid.NewString()
	req := map[string]any{"comment": "please look", "assignee_ids": []string{caActor.ID}}
	status, body = s.do(t, &leadActor, nethttp.MethodPost, path+"forward", req, "Idempotency-Key", key)
	require.Equal(t, nethttp.StatusOK, status, body)
	data := body["data"].(map[string]any)
	assert.Equal(t, "forwarded", data["ticket"].(map[string]any)["status"])
	assert.Equal(t, false, data["replayed"])

	status, body = s.do(t, &leadActor, nethttp.MethodPost, path+"forward", req, "Idempotency-Key", key)
	require.Equal(t, nethttp.StatusOK, status, body)
	assert.Equal(t, true, body["data"].(map[string]any)["replayed"])

	comments, err := s.store.Comments().ListByTicket(testContext(t), id)
	require.NoError(t, err)
	assert.Len(t, comments, 1)

	status, body = s.do(t, &caActor, nethttp.MethodPost, path+"reply", map[string]any{
		"idempotency_key": uuid.NewString(),
		"comment":         "fixed",
	})
	require.Equal(t, nethttp.StatusOK, status, body)
	assert.Equal(t, "replied", body["data"].(map[string]any)["ticket"].(map[string]any)["status"])
	assert.Equal(t, int64(1), s.metrics.TransitionCount("volume_shortfall", "reply", "applied"))
}

func TestUnknownActionAndRoute(t *testing.T) {
	s := newTestServer(t)
	id := s.createTicket(t)

	status, body := s.do(t, &clientActor, nethttp.MethodPost, "/tickets/"+id+"/actions/teleport",
		map[string]any{"idempotency_key": uuid.NewString()})
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do(t, &clientActor, nethttp.MethodGet, "/nowhere", nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestPartialFailureRendersOutcome(t *testing.T) {
	s := newTestServer(t)
	id := s.createTicket(t, leadActor.ID)

	s.store.FailOn(memstore.OpAssignmentUpsert, errors.New("timeout"))
	status, body := s.do(t, &leadActor, nethttp.MethodPost, "/tickets/"+id+"/actions/forward", map[string]any{
		"idempotency_key": uuid.NewString(),
		"assignee_ids":    []string{caActor.ID},
		"comment":         "routing",
	})
	assert.Equal(t, nethttp.StatusMultiStatus, status)
	assert.Equal(t, "PARTIAL_FAILURE", errorCode(body))
	assert.Equal(t, "forwarded", body["data"].(map[string]any)["ticket"].(map[string]any)["status"])
}

func TestMeReturnsDirectoryProfile(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, &ceoActor, nethttp.MethodGet, "/me", nil)
	require.Equal(t, nethttp.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, ceoActor.ID, data["id"])
	assert.Equal(t, "u-ceo@example.com", data["email"])
	assert.Equal(t, true, data["executive"])

	status, _ = s.do(t, nil, nethttp.MethodGet, "/me", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
}

// testContext stands in for testing.T.Context (Go 1.24+): it is cancelled
// when the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

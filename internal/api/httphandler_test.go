package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"availsync/internal/app"
	"availsync/internal/backends/memory"
	"availsync/internal/config"
	"availsync/internal/ports"
	"availsync/internal/types"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/suite"
)

type stubClient struct {
	mu      sync.Mutex
	outcome types.Outcome
}

func (c *stubClient) set(o types.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcome = o
}

func (c *stubClient) Sync(ctx context.Context, target bool, generation uint64) types.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

func (c *stubClient) Fetch(ctx context.Context) (bool, error) { return false, nil }

type UnitTestSuite struct {
	suite.Suite
	client *stubClient
	app    *app.App
	srv    *httptest.Server
}

func TestUnitTestSuite(t *testing.T) {
	suite.Run(t, new(UnitTestSuite))
}

func (s *UnitTestSuite) SetupTest() {
	cfg := config.Default()
	cfg.Backend.URL = "http://backend.invalid"
	cfg.Connectivity.StartOnline = true
	cfg.Toggle.Cooldown = config.Duration(time.Millisecond)
	cfg.Queue.Pacing = config.Duration(time.Millisecond)
	cfg.Queue.EnqueueDelay = config.Duration(time.Hour)

	s.client = &stubClient{outcome: types.Succeeded(0, false)}
	a, err := app.New(context.Background(), cfg, app.Deps{
		Store:    memory.NewStateStore(),
		Client:   s.client,
		Fallback: ports.SenderFunc(func(ctx context.Context, a types.PendingAction) bool { return true }),
	})
	s.Require().NoError(err)
	s.app = a
	s.srv = httptest.NewServer(NewHandler(a.Controller, a.Queue, a.Connectivity).Router())
}

func (s *UnitTestSuite) TearDownTest() {
	s.srv.Close()
	_ = s.app.Close()
}

func (s *UnitTestSuite) do(method, path, body string) (int, map[string]any) {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rd)
	s.Require().NoError(err)
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") && len(raw) > 0 && raw[0] == '{' {
		s.Require().NoError(json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func (s *UnitTestSuite) TestHealth() {
	code, _ := s.do(http.MethodGet, "/health", "")
	s.Equal(http.StatusOK, code)
}

func (s *UnitTestSuite) TestToggleAndRead() {
	code, body := s.do(http.MethodPost, "/availability/toggle", "")
	s.Equal(http.StatusOK, code)
	s.Equal(true, body["is_available"])
	s.Equal(false, body["pending_sync"])
	s.Equal("confirmed", body["session"].(map[string]any)["status"])

	code, body = s.do(http.MethodGet, "/availability", "")
	s.Equal(http.StatusOK, code)
	s.Equal(true, body["is_available"])
}

func (s *UnitTestSuite) TestBusyDuringCooldown() {
	s.client.set(types.Succeeded(60_000, false))
	code, _ := s.do(http.MethodPost, "/availability/toggle", "")
	s.Equal(http.StatusOK, code)

	code, body := s.do(http.MethodPost, "/availability/toggle", "")
	s.Equal(http.StatusConflict, code)
	s.Equal("busy", body["error"])
	s.Greater(body["retry_after_ms"].(float64), float64(0))
}

func (s *UnitTestSuite) TestRejectionReturnsUserMessage() {
	s.client.set(types.Rejection(types.RateLimited, "429"))
	code, body := s.do(http.MethodPut, "/availability", `{"is_available":true}`)
	s.Equal(http.StatusUnprocessableEntity, code)
	s.Equal("RATE_LIMITED", body["code"])
	s.Equal("Too many changes. Please wait and retry shortly.", body["message"])
	s.Equal(false, body["availability"].(map[string]any)["is_available"])
}

func (s *UnitTestSuite) TestPutValidation() {
	code, _ := s.do(http.MethodPut, "/availability", `{}`)
	s.Equal(http.StatusBadRequest, code)
	code, _ = s.do(http.MethodPut, "/availability", `not json`)
	s.Equal(http.StatusBadRequest, code)
	code, _ = s.do(http.MethodPut, "/availability", ``)
	s.Equal(http.StatusBadRequest, code)

	// Already at the target: no backend call, still 200.
	code, body := s.do(http.MethodPut, "/availability", `{"is_available":false}`)
	s.Equal(http.StatusOK, code)
	s.Equal(false, body["is_available"])
}

func (s *UnitTestSuite) TestConnectivity() {
	code, body := s.do(http.MethodGet, "/connectivity", "")
	s.Equal(http.StatusOK, code)
	s.Equal("online", body["state"])

	code, _ = s.do(http.MethodPost, "/connectivity", `{"online":false}`)
	s.Equal(http.StatusAccepted, code)
	s.False(s.app.Connectivity.IsOnline())

	code, body = s.do(http.MethodGet, "/connectivity", "")
	s.Equal(http.StatusOK, code)
	s.Equal(false, body["online"])

	code, _ = s.do(http.MethodPost, "/connectivity", `{}`)
	s.Equal(http.StatusBadRequest, code)
}

func (s *UnitTestSuite) TestActionsLifecycle() {
	code, body := s.do(http.MethodPost, "/actions", `{"kind":"trip_status_update","endpoint":"/trips/1/status","body":"{\"status\":\"arrived\"}"}`)
	s.Equal(http.StatusCreated, code)
	id := body["id"].(string)
	s.NotEmpty(id)
	s.Equal("POST", body["method"])

	code, _ = s.do(http.MethodPost, "/actions", `{"kind":"teleport","endpoint":"/x"}`)
	s.Equal(http.StatusBadRequest, code)

	s.Len(s.app.Queue.List(), 1)

	code, body = s.do(http.MethodPost, "/actions/sync", "")
	s.Equal(http.StatusOK, code)
	s.Equal(float64(1), body["delivered"])
	s.Empty(s.app.Queue.List())

	code, _ = s.do(http.MethodDelete, "/actions/"+id, "")
	s.Equal(http.StatusNotFound, code)
}

func (s *UnitTestSuite) TestRemoveAction() {
	a, err := s.app.Queue.Enqueue(context.Background(), types.PendingAction{Kind: types.KindGeneric, Endpoint: "/x"})
	s.Require().NoError(err)
	code, _ := s.do(http.MethodDelete, "/actions/"+a.ID, "")
	s.Equal(http.StatusNoContent, code)
	s.Empty(s.app.Queue.List())
}

func (s *UnitTestSuite) TestListActionsAndFailures() {
	_, err := s.app.Queue.Enqueue(context.Background(), types.PendingAction{Kind: types.KindProfileUpdate, Endpoint: "/profile", Method: "PATCH"})
	s.Require().NoError(err)

	resp, err := http.Get(s.srv.URL + "/actions")
	s.Require().NoError(err)
	defer resp.Body.Close()
	var list []types.PendingAction
	s.NoError(json.NewDecoder(resp.Body).Decode(&list))
	s.Require().Len(list, 1)
	s.Equal("PATCH", list[0].Method)

	resp2, err := http.Get(s.srv.URL + "/actions/failures")
	s.Require().NoError(err)
	defer resp2.Body.Close()
	s.Equal(http.StatusOK, resp2.StatusCode)
}

func (s *UnitTestSuite) TestWrongMethod() {
	code, _ := s.do(http.MethodDelete, "/availability", "")
	s.Equal(http.StatusMethodNotAllowed, code)
}

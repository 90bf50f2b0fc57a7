package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"flowescrow/internal/app"
	"flowescrow/internal/config"
	"flowescrow/internal/registry"
	"flowescrow/internal/token"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := app.Open(workspace)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	cfg := config.Default()
	cfg.Escrow.FeeBps = 1000
	cfg.Escrow.FeeRecipient = "treasury"
	cfg.Escrow.Admin = "admin"
	eng, err := app.Bootstrap(context.Background(), conn, cfg)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	ledger := token.Ledger{DB: conn}
	if err := ledger.Mint(context.Background(), "client", 1_000_000); err != nil {
		t.Fatalf("mint: %v", err)
	}
	handler, err := New(Config{
		Engine:   eng,
		Registry: registry.New(conn),
		Ledger:   ledger,
		BasePath: "/v1",
		Auth: AuthConfig{
			JWTSecret:               "test-secret",
			AllowLegacyCallerHeader: true,
			DevAuth:                 true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.Close)
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asClient(extra ...string) map[string]string {
	h := map[string]string{"X-Caller-Id": "client"}
	if len(extra) > 0 {
		h["X-Caller-Id"] = extra[0]
	}
	return h
}

func TestEscrowLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{"amount": 100000}, asClient())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("fund status %d: %s", res.StatusCode, string(data))
	}
	var task taskPayload
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if task.ID != 1 || task.Status != "funded" {
		t.Fatalf("task = %+v", task)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/1/approve", map[string]any{
		"subtask_index": 0,
		"worker":        "worker",
		"amount":        20000,
	}, asClient())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", res.StatusCode, string(data))
	}
	var payment subtaskPaymentPayload
	if err := json.Unmarshal(data, &payment); err != nil {
		t.Fatalf("unmarshal payment: %v", err)
	}
	if !payment.Paid || payment.Amount != 20000 {
		t.Fatalf("payment = %+v", payment)
	}

	// 10% fee: worker nets 18000.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/accounts/worker/balance", nil, asClient())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("balance status %d: %s", res.StatusCode, string(data))
	}
	var balance struct {
		Balance int64 `json:"balance"`
	}
	_ = json.Unmarshal(data, &balance)
	if balance.Balance != 18000 {
		t.Fatalf("worker balance = %d, want 18000", balance.Balance)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/1/complete", nil, asClient())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &task)
	if task.Status != "completed" {
		t.Fatalf("status = %s, want completed", task.Status)
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/999", nil, asClient())
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing task status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "task_not_found" {
		t.Fatalf("code = %s, want task_not_found", envelope.Error.Code)
	}

	// Unauthorized caller on someone else's task maps to 403.
	if res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{"amount": 1000}, asClient()); res.StatusCode != http.StatusCreated {
		t.Fatalf("fund: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/1/cancel", nil, asClient("stranger"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("stranger cancel status %d: %s", res.StatusCode, string(data))
	}

	// Over-budget release maps to 422.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/1/approve", map[string]any{
		"subtask_index": 0,
		"worker":        "worker",
		"amount":        2000,
	}, asClient())
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("over budget status %d: %s", res.StatusCode, string(data))
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/1", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no credentials status %d", res.StatusCode)
	}
	// Health stays open.
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
}

func TestDevLoginAndBearerAuth(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{"account": "client"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("login body: %v %s", err, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{"amount": 5000}, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("fund with bearer status %d: %s", res.StatusCode, string(data))
	}
	var task taskPayload
	_ = json.Unmarshal(data, &task)
	if task.Client != "client" {
		t.Fatalf("task client = %s, want client", task.Client)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/1", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token status %d", res.StatusCode)
	}
}

func TestDisputeResolutionOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	if res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{"amount": 100000}, asClient()); res.StatusCode != http.StatusCreated {
		t.Fatalf("fund: %d %s", res.StatusCode, string(data))
	}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/1/dispute", nil, asClient("worker"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dispute status %d: %s", res.StatusCode, string(data))
	}
	// Non-admin resolution is forbidden.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/1/resolve", map[string]any{
		"winner":        "worker",
		"winner_amount": 60000,
	}, asClient())
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("client resolve status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/1/resolve", map[string]any{
		"winner":        "worker",
		"winner_amount": 60000,
	}, asClient("admin"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin resolve status %d: %s", res.StatusCode, string(data))
	}
	var task taskPayload
	_ = json.Unmarshal(data, &task)
	if task.Status != "resolved" {
		t.Fatalf("status = %s, want resolved", task.Status)
	}
}

func TestArtifactsAndEvents(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/artifacts", map[string]any{
		"id":           "model-v1",
		"content_hash": "sha256:abc",
		"contributors": []string{"client", "worker"},
	}, asClient())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/artifacts", map[string]any{
		"id":           "model-v1",
		"content_hash": "sha256:def",
		"contributors": []string{"client"},
	}, asClient())
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status %d: %s", res.StatusCode, string(data))
	}

	if res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{"amount": 1000}, asClient()); res.StatusCode != http.StatusCreated {
		t.Fatalf("fund: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/events?limit=10", nil, asClient())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var events []eventPayload
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("event count = %d, want 2", len(events))
	}
	if events[0].Type != "task.funded" || events[1].Type != "artifact.registered" {
		t.Fatalf("event order = %s, %s", events[0].Type, events[1].Type)
	}
}

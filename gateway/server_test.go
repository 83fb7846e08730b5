package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"jobescrow/escrow"
	"jobescrow/events"
	"jobescrow/ledger"
	"jobescrow/state"
	"jobescrow/storage"
)

type stubFetcher struct {
	content string
	err     error
}

func (f *stubFetcher) Fetch(_ context.Context, _ string) (string, error) {
	return f.content, f.err
}

type stubJudge struct {
	response string
	err      error
}

func (j *stubJudge) Judge(_ context.Context, _ string) (string, error) {
	return j.response, j.err
}

type fixture struct {
	t        *testing.T
	server   *httptest.Server
	manager  *state.Manager
	fetcher  *stubFetcher
	judge    *stubJudge
	now      int64
	client   escrow.Address
	worker   escrow.Address
	stranger escrow.Address
}

func address(fill byte) escrow.Address {
	var addr escrow.Address
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		manager:  state.NewManager(storage.NewMemDB()),
		fetcher:  &stubFetcher{content: "<html>deliverable</html>"},
		judge:    &stubJudge{response: "VERDICT: APPROVED\nCONFIDENCE: HIGH"},
		now:      1_700_000_000,
		client:   address(0x01),
		worker:   address(0x02),
		stranger: address(0x03),
	}
	require.NoError(t, f.manager.PutAccount(f.client, &ledger.Account{Balance: big.NewInt(5_000_000)}))

	engine := escrow.NewEngine()
	engine.SetState(f.manager)
	engine.SetFetcher(f.fetcher)
	engine.SetJudge(f.judge)
	engine.SetNowFunc(func() int64 { return f.now })
	recorder := events.NewRecorder(128)
	engine.SetEmitter(recorder)

	srv := New(Config{Engine: engine, Recorder: recorder})
	f.server = httptest.NewServer(srv)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) do(method, path string, caller *escrow.Address, body any) (*http.Response, map[string]any) {
	f.t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&payload).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, &payload)
	require.NoError(f.t, err)
	if caller != nil {
		req.Header.Set(callerHeader, caller.Hex())
	}
	resp, err := f.server.Client().Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()
	decoded := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (f *fixture) createJob() string {
	f.t.Helper()
	resp, body := f.do(http.MethodPost, "/v1/jobs", &f.client, map[string]any{
		"title":         "Build a landing page",
		"requirements":  "Responsive layout with dark mode",
		"durationHours": 72,
		"amount":        "1000000",
	})
	require.Equal(f.t, http.StatusCreated, resp.StatusCode)
	id, _ := body["id"].(string)
	require.NotEmpty(f.t, id)
	return id
}

func (f *fixture) balance(addr escrow.Address) int64 {
	f.t.Helper()
	acc, err := f.manager.GetAccount(addr)
	require.NoError(f.t, err)
	return acc.Balance.Int64()
}

func TestApprovedFlowOverHTTP(t *testing.T) {
	f := newFixture(t)
	id := f.createJob()
	require.Equal(t, int64(4_000_000), f.balance(f.client))

	resp, body := f.do(http.MethodPost, "/v1/jobs/"+id+"/accept", &f.worker, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "in_progress", body["status"])

	resp, body = f.do(http.MethodPost, "/v1/jobs/"+id+"/submit", &f.worker, map[string]string{"url": "https://example.com/work"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "submitted", body["status"])

	resp, body = f.do(http.MethodPost, "/v1/jobs/"+id+"/evaluate", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "APPROVED", body["verdict"])

	resp, body = f.do(http.MethodGet, "/v1/jobs/"+id+"/status", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "completed", body["status"])
	require.Equal(t, int64(1_000_000), f.balance(f.worker))

	resp, body = f.do(http.MethodGet, "/v1/jobs/"+id+"/evaluation", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body["evaluation"], "VERDICT: APPROVED")
}

func TestRejectedFlowRefundsClient(t *testing.T) {
	f := newFixture(t)
	f.judge.response = "VERDICT: REJECTED\nCONFIDENCE: HIGH"
	id := f.createJob()
	f.do(http.MethodPost, "/v1/jobs/"+id+"/accept", &f.worker, nil)
	f.do(http.MethodPost, "/v1/jobs/"+id+"/submit", &f.worker, map[string]string{"url": "https://example.com/work"})

	resp, body := f.do(http.MethodPost, "/v1/jobs/"+id+"/evaluate", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "REJECTED", body["verdict"])
	require.Equal(t, int64(5_000_000), f.balance(f.client))
	require.Zero(t, f.balance(f.worker))
}

func TestFetchFailureRefundsClient(t *testing.T) {
	f := newFixture(t)
	f.fetcher.err = fmt.Errorf("connection refused")
	id := f.createJob()
	f.do(http.MethodPost, "/v1/jobs/"+id+"/accept", &f.worker, nil)
	f.do(http.MethodPost, "/v1/jobs/"+id+"/submit", &f.worker, map[string]string{"url": "https://example.com/down"})

	resp, body := f.do(http.MethodPost, "/v1/jobs/"+id+"/evaluate", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "REJECTED", body["verdict"])
	require.Equal(t, "URL inaccessible", body["reason"])
	require.Equal(t, int64(5_000_000), f.balance(f.client))
}

func TestJudgeFailureReturns500AndKeepsJobSubmitted(t *testing.T) {
	f := newFixture(t)
	f.judge.err = fmt.Errorf("upstream unavailable")
	id := f.createJob()
	f.do(http.MethodPost, "/v1/jobs/"+id+"/accept", &f.worker, nil)
	f.do(http.MethodPost, "/v1/jobs/"+id+"/submit", &f.worker, map[string]string{"url": "https://example.com/work"})

	resp, _ := f.do(http.MethodPost, "/v1/jobs/"+id+"/evaluate", nil, nil)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	_, body := f.do(http.MethodGet, "/v1/jobs/"+id+"/status", nil, nil)
	require.Equal(t, "submitted", body["status"])
}

func TestDeadlineRefundOverHTTP(t *testing.T) {
	f := newFixture(t)
	id := f.createJob()
	f.do(http.MethodPost, "/v1/jobs/"+id+"/accept", &f.worker, nil)

	// Before the deadline the claim is rejected as premature.
	resp, body := f.do(http.MethodPost, "/v1/jobs/"+id+"/refund", &f.client, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	f.now += 73 * 3600
	resp, body = f.do(http.MethodPost, "/v1/jobs/"+id+"/refund", &f.client, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "refunded", body["status"])
	require.Equal(t, int64(5_000_000), f.balance(f.client))
}

func TestCancelOverHTTP(t *testing.T) {
	f := newFixture(t)
	id := f.createJob()
	resp, body := f.do(http.MethodPost, "/v1/jobs/"+id+"/cancel", &f.client, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "refunded", body["status"])
	require.Equal(t, int64(5_000_000), f.balance(f.client))
}

func TestWithdrawReopensJobOverHTTP(t *testing.T) {
	f := newFixture(t)
	id := f.createJob()
	f.do(http.MethodPost, "/v1/jobs/"+id+"/accept", &f.worker, nil)

	resp, body := f.do(http.MethodPost, "/v1/jobs/"+id+"/withdraw", &f.worker, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "open", body["status"])
	require.Nil(t, body["freelancer"])
}

func TestErrorStatusMapping(t *testing.T) {
	f := newFixture(t)
	id := f.createJob()

	// Missing caller header.
	resp, _ := f.do(http.MethodPost, "/v1/jobs/"+id+"/accept", nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Client accepting its own job.
	resp, body := f.do(http.MethodPost, "/v1/jobs/"+id+"/accept", &f.client, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	errBody, _ := body["error"].(map[string]any)
	require.Equal(t, "wrong_actor", errBody["code"])

	// Evaluating a job that is not submitted.
	resp, body = f.do(http.MethodPost, "/v1/jobs/"+id+"/evaluate", nil, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	errBody, _ = body["error"].(map[string]any)
	require.Equal(t, "wrong_state", errBody["code"])

	// Unknown and malformed job identifiers.
	resp, _ = f.do(http.MethodGet, "/v1/jobs/00000000-0000-0000-0000-000000000001", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = f.do(http.MethodGet, "/v1/jobs/not-a-uuid", nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Creating a job the caller cannot fund.
	resp, body = f.do(http.MethodPost, "/v1/jobs", &f.stranger, map[string]any{
		"title":         "t",
		"requirements":  "r",
		"durationHours": 1,
		"amount":        "1",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	errBody, _ = body["error"].(map[string]any)
	require.Equal(t, "insufficient_balance", errBody["code"])

	// Non-integer amount.
	resp, _ = f.do(http.MethodPost, "/v1/jobs", &f.client, map[string]any{
		"title":         "t",
		"requirements":  "r",
		"durationHours": 1,
		"amount":        "ten",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeadlineEndpoint(t *testing.T) {
	f := newFixture(t)
	id := f.createJob()

	resp, body := f.do(http.MethodGet, "/v1/jobs/"+id+"/deadline", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, body["passed"])
	require.Equal(t, float64(72*3600), body["remainingSeconds"])

	f.now += 73 * 3600
	resp, body = f.do(http.MethodGet, "/v1/jobs/"+id+"/deadline", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["passed"])
	require.Equal(t, float64(0), body["remainingSeconds"])
}

func TestEventsEndpoint(t *testing.T) {
	f := newFixture(t)
	id := f.createJob()
	f.do(http.MethodPost, "/v1/jobs/"+id+"/accept", &f.worker, nil)

	resp, body := f.do(http.MethodGet, "/v1/events", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ := body["events"].([]any)
	require.Len(t, raw, 2)
	first, _ := raw[0].(map[string]any)
	second, _ := raw[1].(map[string]any)
	require.Equal(t, "escrow.created", first["type"])
	require.Equal(t, "escrow.accepted", second["type"])
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp, err := f.server.Client().Get(f.server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimitRejectsBursts(t *testing.T) {
	f := newFixture(t)
	engine := escrow.NewEngine()
	engine.SetState(f.manager)
	srv := httptest.NewServer(New(Config{
		Engine:    engine,
		RateLimit: RateLimit{RequestsPerMinute: 1, Burst: 1},
	}))
	defer srv.Close()

	first, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	first.Body.Close()
	require.Equal(t, http.StatusOK, first.StatusCode)

	second, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	second.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, second.StatusCode)
}

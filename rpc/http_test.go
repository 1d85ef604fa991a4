package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"dineledger/core"
	"dineledger/core/events"
	"dineledger/core/types"
	"dineledger/crypto"
	"dineledger/storage"
)

var (
	testSecret = []byte("test-secret")
	operator   = crypto.MustParseAddress("0x1000000000000000000000000000000000000001")
	ledgerID   = crypto.MustParseAddress("0x1100000000000000000000000000000000000011")
	restaurant = crypto.MustParseAddress("0x2000000000000000000000000000000000000002")
	customer   = crypto.MustParseAddress("0x3000000000000000000000000000000000000003")
	stranger   = crypto.MustParseAddress("0x4000000000000000000000000000000000000004")
)

type testEnv struct {
	t      *testing.T
	node   *core.Node
	server *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	node, err := core.NewNode(storage.NewMemDB(), events.NewBus(64), core.Options{
		Operator:       operator,
		LedgerIdentity: ledgerID,
		Now:            func() int64 { return 1_700_000_000 },
	})
	require.NoError(t, err)
	t.Cleanup(node.Close)

	idem, err := OpenIdempotencyStore(filepath.Join(t.TempDir(), "idem.db"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idem.Close() })

	srv, err := NewServer(node, ServerConfig{
		Auth:            AuthConfig{HMACSecret: testSecret, Issuer: "dineledger"},
		RateLimitPerSec: 1000,
		RateLimitBurst:  1000,
	}, WithIdempotencyStore(idem))
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{t: t, node: node, server: ts}
}

func (e *testEnv) token(addr [20]byte) string {
	e.t.Helper()
	tok, err := IssueToken(testSecret, "dineledger", addr, time.Hour, time.Now())
	require.NoError(e.t, err)
	return tok
}

func (e *testEnv) do(method, path string, as *[20]byte, body interface{}, headers map[string]string) (*http.Response, []byte) {
	e.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set("Authorization", "Bearer "+e.token(*as))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(e.t, err)
	return resp, buf.Bytes()
}

func (e *testEnv) expect(status int, method, path string, as *[20]byte, body interface{}) []byte {
	e.t.Helper()
	resp, raw := e.do(method, path, as, body, nil)
	require.Equalf(e.t, status, resp.StatusCode, "%s %s: %s", method, path, raw)
	return raw
}

func (e *testEnv) setupPayment() {
	e.t.Helper()
	e.expect(http.StatusCreated, http.MethodPost, "/v1/restaurants", &operator,
		map[string]string{"address": crypto.FormatAddress(restaurant), "name": "Test Restaurant"})
	e.expect(http.StatusOK, http.MethodPost, "/v1/admin/mint/stable", &operator,
		map[string]string{"to": crypto.FormatAddress(customer), "amount": "300.00"})
	e.expect(http.StatusOK, http.MethodPost, "/v1/stable/approve", &customer,
		map[string]string{"amount": "300.00"})
}

func apiError(t *testing.T, raw []byte) APIError {
	t.Helper()
	var out APIError
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(http.MethodGet, "/healthz", nil, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", string(body))
	require.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestWritesRequireToken(t *testing.T) {
	env := newTestEnv(t)
	raw := env.expect(http.StatusUnauthorized, http.MethodPost, "/v1/restaurants", nil, map[string]string{})
	require.Equal(t, codeUnauthorized, apiError(t, raw).Code)

	resp, _ := env.do(http.MethodPost, "/v1/restaurants", nil, map[string]string{}, map[string]string{"Authorization": "Bearer garbage"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	expired, err := IssueToken(testSecret, "dineledger", operator, -time.Hour, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	resp, _ = env.do(http.MethodPost, "/v1/restaurants", nil, map[string]string{}, map[string]string{"Authorization": "Bearer " + expired})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPaymentFlow(t *testing.T) {
	env := newTestEnv(t)
	env.setupPayment()

	raw := env.expect(http.StatusCreated, http.MethodPost, "/v1/payments", &customer,
		map[string]string{"restaurant": crypto.FormatAddress(restaurant), "amount": "100.00", "billDetails": "table 4"})
	var payment PaymentResult
	require.NoError(t, json.Unmarshal(raw, &payment))
	require.Equal(t, uint64(1), payment.ID)
	require.Equal(t, "100.00", payment.Amount)
	require.Equal(t, "2.50", payment.Fee)
	require.Equal(t, "97.50", payment.RestaurantAmount)

	raw = env.expect(http.StatusOK, http.MethodGet, "/v1/stats", nil, nil)
	var stats PaymentStatsResult
	require.NoError(t, json.Unmarshal(raw, &stats))
	require.Equal(t, uint64(1), stats.TotalPayments)
	require.Equal(t, "100.00", stats.TotalVolume)

	raw = env.expect(http.StatusOK, http.MethodGet, "/v1/balances/"+crypto.FormatAddress(restaurant), nil, nil)
	var balances BalancesResult
	require.NoError(t, json.Unmarshal(raw, &balances))
	require.Equal(t, "97.50", balances.Stable)

	raw = env.expect(http.StatusOK, http.MethodGet, "/v1/customers/"+crypto.FormatAddress(customer)+"/payments", nil, nil)
	var ids IDsResult
	require.NoError(t, json.Unmarshal(raw, &ids))
	require.Equal(t, []uint64{1}, ids.IDs)

	env.expect(http.StatusNotFound, http.MethodGet, "/v1/payments/99", nil, nil)
	env.expect(http.StatusBadRequest, http.MethodGet, "/v1/payments/abc", nil, nil)
}

func TestErrorStatusMapping(t *testing.T) {
	env := newTestEnv(t)
	env.setupPayment()

	raw := env.expect(http.StatusForbidden, http.MethodPost, "/v1/restaurants", &stranger,
		map[string]string{"address": crypto.FormatAddress(stranger), "name": "Nope"})
	require.Equal(t, codeForbidden, apiError(t, raw).Code)

	env.expect(http.StatusConflict, http.MethodPost, "/v1/restaurants", &operator,
		map[string]string{"address": crypto.FormatAddress(restaurant), "name": "Again"})

	env.expect(http.StatusUnprocessableEntity, http.MethodPost, "/v1/payments", &customer,
		map[string]string{"restaurant": crypto.FormatAddress(stranger), "amount": "10.00"})

	env.expect(http.StatusBadRequest, http.MethodPost, "/v1/payments", &customer,
		map[string]string{"restaurant": crypto.FormatAddress(restaurant), "amount": "ten"})

	env.expect(http.StatusOK, http.MethodPost, "/v1/admin/payments/pause", &operator, nil)
	raw = env.expect(http.StatusLocked, http.MethodPost, "/v1/payments", &customer,
		map[string]string{"restaurant": crypto.FormatAddress(restaurant), "amount": "10.00"})
	require.Equal(t, codePaused, apiError(t, raw).Code)
	env.expect(http.StatusOK, http.MethodPost, "/v1/admin/payments/unpause", &operator, nil)

	env.expect(http.StatusNotFound, http.MethodPost, "/v1/admin/stable/pause", &operator, nil)
	env.expect(http.StatusUnprocessableEntity, http.MethodPost, "/v1/admin/payments/fee", &operator, map[string]uint32{"bps": 1001})
}

func TestReviewFlow(t *testing.T) {
	env := newTestEnv(t)
	env.setupPayment()
	env.expect(http.StatusCreated, http.MethodPost, "/v1/payments", &customer,
		map[string]string{"restaurant": crypto.FormatAddress(restaurant), "amount": "100.00"})

	env.expect(http.StatusForbidden, http.MethodPost, "/v1/payments/1/review", &stranger,
		map[string]interface{}{"rating": 5, "text": "not mine"})
	env.expect(http.StatusUnprocessableEntity, http.MethodPost, "/v1/payments/1/review", &customer,
		map[string]interface{}{"rating": 6, "text": "too good"})

	raw := env.expect(http.StatusCreated, http.MethodPost, "/v1/payments/1/review", &customer,
		map[string]interface{}{"rating": 5, "text": "Great food!"})
	var review ReviewResult
	require.NoError(t, json.Unmarshal(raw, &review))
	require.Equal(t, uint64(1), review.BillID)
	require.Equal(t, "Test Restaurant", review.RestaurantName)
	require.True(t, review.Active)

	env.expect(http.StatusConflict, http.MethodPost, "/v1/payments/1/review", &customer,
		map[string]interface{}{"rating": 4, "text": "again"})

	raw = env.expect(http.StatusOK, http.MethodGet, "/v1/restaurants/"+crypto.FormatAddress(restaurant)+"/stats", nil, nil)
	var stats RestaurantStatsResult
	require.NoError(t, json.Unmarshal(raw, &stats))
	require.Equal(t, RestaurantStatsResult{TotalReviews: 1, TotalRatingSum: 5, AverageRating: 500}, stats)

	raw = env.expect(http.StatusOK, http.MethodGet, "/v1/reviews/1/metadata", nil, nil)
	require.Contains(t, string(raw), "Review #1 - Test Restaurant")

	env.expect(http.StatusOK, http.MethodPost, "/v1/admin/mint/native", &operator,
		map[string]string{"to": crypto.FormatAddress(stranger), "amount": "1000"})
	raw = env.expect(http.StatusOK, http.MethodPost, "/v1/reviews/1/tips", &stranger, map[string]string{"amount": "400"})
	require.NoError(t, json.Unmarshal(raw, &review))
	require.Equal(t, "400", review.TotalTips)
	env.expect(http.StatusUnprocessableEntity, http.MethodPost, "/v1/reviews/1/tips", &stranger, map[string]string{"amount": "0"})

	env.expect(http.StatusAccepted, http.MethodPost, "/v1/reviews/1/report", &stranger, map[string]string{"reason": "rude"})
	env.expect(http.StatusForbidden, http.MethodPost, "/v1/reviews/1/deactivate", &stranger, nil)
	raw = env.expect(http.StatusOK, http.MethodPost, "/v1/reviews/1/deactivate", &operator, nil)
	require.NoError(t, json.Unmarshal(raw, &review))
	require.False(t, review.Active)
	env.expect(http.StatusUnprocessableEntity, http.MethodPost, "/v1/reviews/1/tips", &stranger, map[string]string{"amount": "1"})
	env.expect(http.StatusNotFound, http.MethodGet, "/v1/reviews/7", nil, nil)
}

func TestIdempotentPaymentReplay(t *testing.T) {
	env := newTestEnv(t)
	env.setupPayment()
	body := map[string]string{"restaurant": crypto.FormatAddress(restaurant), "amount": "100.00"}
	headers := map[string]string{idempotencyHeader: "bill-42"}

	first, firstBody := env.do(http.MethodPost, "/v1/payments", &customer, body, headers)
	require.Equal(t, http.StatusCreated, first.StatusCode)
	second, secondBody := env.do(http.MethodPost, "/v1/payments", &customer, body, headers)
	require.Equal(t, http.StatusCreated, second.StatusCode)
	require.Equal(t, "true", second.Header.Get("Idempotent-Replay"))
	require.JSONEq(t, string(firstBody), string(secondBody))

	stats, err := env.node.PaymentStats(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1), stats.TotalPayments)

	body["amount"] = "5.00"
	conflict, _ := env.do(http.MethodPost, "/v1/payments", &customer, body, headers)
	require.Equal(t, http.StatusConflict, conflict.StatusCode)
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/v1/events/ws?types=payments.restaurant"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	env.expect(http.StatusOK, http.MethodPost, "/v1/admin/mint/stable", &operator,
		map[string]string{"to": crypto.FormatAddress(customer), "amount": "1.00"})
	env.expect(http.StatusCreated, http.MethodPost, "/v1/restaurants", &operator,
		map[string]string{"address": crypto.FormatAddress(restaurant), "name": "Streamed"})

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var evt types.Event
	require.NoError(t, json.Unmarshal(data, &evt))
	require.Equal(t, "payments.restaurant.registered", evt.Type)
	require.Equal(t, "Streamed", evt.Attr("name"))
	require.NotZero(t, evt.Sequence)
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	limiter := NewRateLimiter(1, 2)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }
	require.True(t, limiter.allow("a"))
	require.True(t, limiter.allow("a"))
	require.False(t, limiter.allow("a"))
	require.True(t, limiter.allow("b"))

	now = now.Add(time.Second)
	require.True(t, limiter.allow("a"))
}

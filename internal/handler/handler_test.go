package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abrham-amplitude/solana-ticket/internal/keys"
	"github.com/Abrham-amplitude/solana-ticket/internal/ledger/ledgertest"
	"github.com/Abrham-amplitude/solana-ticket/internal/services"
	"github.com/Abrham-amplitude/solana-ticket/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	r      *gin.Engine
	ledger *ledgertest.Ledger
	engine *services.Engine
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	l := ledgertest.New()
	log := utils.NewLogger("test", "error")
	e := services.NewEngine(l, services.DefaultConfig(), services.WithLogger(log))
	r := gin.New()
	RegisterRoutes(r, New(e, log, append([]Option{WithWarmup(0)}, opts...)...))
	return &testServer{r: r, ledger: l, engine: e}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "127.0.0.1:40000"
	rec := httptest.NewRecorder()
	s.r.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) wallet(lamports uint64) (keys.Keypair, gin.H) {
	k := keys.Generate()
	if lamports > 0 {
		s.ledger.Fund(k.PublicAddress(), lamports)
	}
	return k, gin.H{"secret": keys.Export(k, keys.Hex)}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func with(base gin.H, kv ...any) gin.H {
	out := gin.H{}
	for k, v := range base {
		out[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i].(string)] = kv[i+1]
	}
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/healthz", nil).Code)

	rec := s.do(http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode(t, rec)["status"])

	s.ledger.SetHealth(errors.New("node is behind"))
	rec = s.do(http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "node is behind")
}

func TestReadinessWarmup(t *testing.T) {
	s := newTestServer(t, WithWarmup(time.Hour))
	rec := s.do(http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decode(t, rec), "remaining")
}

func TestCreateWalletIsLocalOnly(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/wallets", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Len(t, body["secret_hex"], 128)

	k, err := keys.Import(body["secret_base58"].(string), keys.Base58)
	require.NoError(t, err)
	assert.Equal(t, body["address"], k.PublicAddress().String())

	req := httptest.NewRequest(http.MethodPost, "/wallets", nil)
	req.RemoteAddr = "198.51.100.7:5555"
	remote := httptest.NewRecorder()
	s.r.ServeHTTP(remote, req)
	assert.Equal(t, http.StatusForbidden, remote.Code)
}

func TestTicketRoutesWithKeysAreLocalOnly(t *testing.T) {
	s := newTestServer(t)
	_, ownerReq := s.wallet(utils.LamportsPerSOL)
	ticket := solana.NewWallet().PublicKey().String()

	for _, path := range []string{
		"/tickets/value",
		"/tickets/value/" + ticket + "/use",
		"/tickets/asset",
		"/tickets/asset/" + ticket + "/use",
	} {
		t.Run(path, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, json.NewEncoder(&buf).Encode(with(ownerReq, "price", 5_000_000)))
			req := httptest.NewRequest(http.MethodPost, path, &buf)
			req.Header.Set("Content-Type", "application/json")
			req.RemoteAddr = "203.0.113.7:5555"
			rec := httptest.NewRecorder()
			s.r.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
		})
	}
	assert.Zero(t, s.ledger.Submitted())

	rec := s.do(http.MethodGet, "/tickets/value/"+ticket, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConvertKey(t *testing.T) {
	s := newTestServer(t)
	k := keys.Generate()
	rec := s.do(http.MethodPost, "/wallets/convert", gin.H{"secret": keys.Export(k, keys.Hex), "from": "hex", "to": "base58"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, keys.Export(k, keys.Base58), body["secret"])
	assert.Equal(t, k.PublicAddress().String(), body["address"])

	rec = s.do(http.MethodPost, "/wallets/convert", gin.H{"secret": "abcd", "from": "hex", "to": "base58"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_key_material", decode(t, rec)["kind"])

	rec = s.do(http.MethodPost, "/wallets/convert", gin.H{"secret": "zz", "from": "hex", "to": "base64"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBalanceAndTransfer(t *testing.T) {
	s := newTestServer(t)
	from, fromReq := s.wallet(utils.LamportsPerSOL)
	to := solana.NewWallet().PublicKey()

	rec := s.do(http.MethodGet, "/wallets/"+from.PublicAddress().String()+"/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1 SOL", decode(t, rec)["sol"])

	rec = s.do(http.MethodPost, "/wallets/transfer", with(fromReq, "to", to.String(), "sol", "0.25"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 250_000_000, decode(t, rec)["lamports"])

	rec = s.do(http.MethodPost, "/wallets/transfer", with(fromReq, "to", to.String(), "lamports", 10*utils.LamportsPerSOL))
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "insufficient_funds", decode(t, rec)["kind"])

	rec = s.do(http.MethodGet, "/wallets/not-an-address/balance", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decode(t, rec)["kind"])
}

func TestAirdrop(t *testing.T) {
	var limited int
	limit := func(c *gin.Context) {
		limited++
		c.Next()
	}
	s := newTestServer(t, WithAirdropLimit(limit))
	addr := solana.NewWallet().PublicKey()

	rec := s.do(http.MethodPost, "/wallets/airdrop", gin.H{"address": addr.String()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, limited)
	bal, _ := s.ledger.GetBalance(t.Context(), addr)
	assert.Equal(t, DefaultAirdrop, bal)

	s.ledger.FailSends(errors.New("faucet dry"))
	rec = s.do(http.MethodPost, "/wallets/airdrop", gin.H{"address": addr.String(), "sol": "0.5"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "submission_failed", decode(t, rec)["kind"])
}

func TestValueTicketRoutes(t *testing.T) {
	s := newTestServer(t)
	_, ownerReq := s.wallet(utils.LamportsPerSOL)
	holder, holderReq := s.wallet(1_000_000)

	rec := s.do(http.MethodPost, "/tickets/value", with(ownerReq, "price", 3_000_000))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ticket := decode(t, rec)["ticket_address"].(string)

	rec = s.do(http.MethodGet, "/tickets/value/"+ticket, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["valid"])

	rec = s.do(http.MethodPost, "/tickets/value/"+ticket+"/use", holderReq)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.EqualValues(t, 3_000_000, body["amount"])
	assert.Equal(t, holder.PublicAddress().String(), body["holder"])

	rec = s.do(http.MethodPost, "/tickets/value/"+ticket+"/use", holderReq)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_ticket", decode(t, rec)["kind"])

	rec = s.do(http.MethodGet, "/tickets?kind=value&status=used", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["count"])
}

func TestCreateValueTicketErrors(t *testing.T) {
	s := newTestServer(t)
	_, poor := s.wallet(1_000)
	_, rich := s.wallet(utils.LamportsPerSOL)

	cases := []struct {
		name   string
		body   any
		status int
		kind   string
	}{
		{"insufficient funds", with(poor, "price", 5_000_000), http.StatusPaymentRequired, "insufficient_funds"},
		{"zero price", with(rich, "price", 0), http.StatusBadRequest, "invalid_request"},
		{"below rent exemption", with(rich, "price", 1_000), http.StatusBadRequest, "invalid_request"},
		{"bad secret", gin.H{"secret": "not hex", "price": 1}, http.StatusBadRequest, "decode_error"},
		{"bad encoding", with(rich, "encoding", "base64", "price", 1), http.StatusBadRequest, "invalid_request"},
		{"both amounts", with(rich, "price", 1, "price_sol", "0.1"), http.StatusBadRequest, "invalid_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/tickets/value", tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			body := decode(t, rec)
			assert.Equal(t, tc.kind, body["kind"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestConfirmationTimeoutIsAccepted(t *testing.T) {
	s := newTestServer(t)
	_, ownerReq := s.wallet(utils.LamportsPerSOL)
	s.ledger.FailConfirms(errors.New("deadline exceeded"))

	rec := s.do(http.MethodPost, "/tickets/value", with(ownerReq, "price_sol", "0.001"))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "confirmation_timeout", body["kind"])
	result := body["result"].(map[string]any)
	assert.NotEmpty(t, result["transaction_id"])
	assert.EqualValues(t, 1_000_000, result["price"])
}

func TestAssetTicketRoutes(t *testing.T) {
	s := newTestServer(t)
	owner, ownerReq := s.wallet(utils.LamportsPerSOL)

	rec := s.do(http.MethodPost, "/tickets/asset", with(ownerReq,
		"event_name", "Jazz Night",
		"event_date", "2026-11-20",
		"seat_info", gin.H{"section": "B", "row": "7", "seat": "21"},
		"price_sol", "0.5",
	))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	mint := created["mint_address"].(string)
	meta := created["metadata"].(map[string]any)
	assert.Equal(t, "Jazz Night Ticket", meta["name"])
	assert.EqualValues(t, 500_000_000, meta["price"])

	rec = s.do(http.MethodGet, "/tickets/asset/"+mint, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode(t, rec)
	assert.Equal(t, true, info["valid"])
	assert.EqualValues(t, 1, info["supply"])
	assert.Equal(t, owner.PublicAddress().String(), info["owner"])

	rec = s.do(http.MethodPost, "/tickets/asset/"+mint+"/use", ownerReq)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/tickets/asset/"+mint+"/use", ownerReq)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodGet, "/tickets/asset/"+mint+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history), rec.Body.String())
	require.Len(t, history, 2)
	assert.Equal(t, "Usage", history[0]["classified_type"])
	assert.Equal(t, "Mint", history[1]["classified_type"])

	rec = s.do(http.MethodGet, "/tickets/asset/"+solana.NewWallet().PublicKey().String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode(t, rec)["kind"])
}

// brokenWriter 模拟客户端在第 failAt 次写入时断开
type brokenWriter struct {
	*httptest.ResponseRecorder
	failAt int
	writes int
}

func (w *brokenWriter) Write(b []byte) (int, error) {
	w.writes++
	if w.writes >= w.failAt {
		return 0, errors.New("broken pipe")
	}
	return w.ResponseRecorder.Write(b)
}

func (w *brokenWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func TestHistoryStopsWritingAfterClientGoesAway(t *testing.T) {
	s := newTestServer(t)
	owner, _ := s.wallet(utils.LamportsPerSOL)
	ticket, err := s.engine.CreateAssetTicket(t.Context(), owner, services.TicketSpec{EventName: "Gala"})
	require.NoError(t, err)
	_, err = s.engine.UseAssetTicket(t.Context(), owner, ticket.MintAddress)
	require.NoError(t, err)

	// "[" 和第一条记录写成功，随后的 "," 失败
	w := &brokenWriter{ResponseRecorder: httptest.NewRecorder(), failAt: 3}
	req := httptest.NewRequest(http.MethodGet, "/tickets/asset/"+ticket.MintAddress.String()+"/history", nil)
	s.r.ServeHTTP(w, req)

	assert.Equal(t, 3, w.writes)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "]")
}

func TestHistoryOfUnknownMintIsEmpty(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/tickets/asset/"+solana.NewWallet().PublicKey().String()+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestListTicketsValidation(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/tickets?kind=coupon", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/tickets?limit=-1", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/tickets?limit=5", nil).Code)
}

func TestStatusOf(t *testing.T) {
	cases := map[error]int{
		keys.ErrInvalidKeyMaterial:      http.StatusBadRequest,
		keys.ErrDecode:                  http.StatusBadRequest,
		services.ErrInvalidRequest:      http.StatusBadRequest,
		services.ErrInsufficientFunds:   http.StatusPaymentRequired,
		services.ErrInvalidTicket:       http.StatusConflict,
		services.ErrNotFound:            http.StatusNotFound,
		services.ErrConfirmationTimeout: http.StatusAccepted,
		services.ErrSubmissionFailed:    http.StatusBadGateway,
		services.ErrStorage:             http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusOf(fmt.Errorf("%w: cause", err)), err.Error())
	}
}

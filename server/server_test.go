package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/creastat/receipts"
	"github.com/creastat/receipts/capi"
	"github.com/creastat/receipts/document"
	"github.com/creastat/receipts/purchase"
	"github.com/creastat/receipts/session"
	"github.com/creastat/receipts/session/drivers"
	"github.com/creastat/receipts/supabase"
)

var receiptFiles = map[string]string{
	"/pix.pdf":   "%PDF-1.4\npix",
	"/blank.png": "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDRblank",
}

var receiptTexts = map[string]string{
	"%PDF-1.4\npix": "Comprovante Pix\nValor: R$ 10,00\nEndToEndId: E00000000202501011200abcd",
	"\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDRblank": "obrigado pela preferência",
}

type fakeMeta struct {
	mu     sync.Mutex
	events []gjson.Result
	fail   atomic.Bool
}

func (m *fakeMeta) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	if m.fail.Load() {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"service unavailable"}}`))
		return
	}
	m.mu.Lock()
	m.events = append(m.events, gjson.ParseBytes(body).Get("data.0"))
	n := len(m.events)
	m.mu.Unlock()
	_, _ = w.Write([]byte(`{"events_received":1,"fbtrace_id":"trace-` + strconv.Itoa(n) + `"}`))
}

func (m *fakeMeta) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

type memArchive struct {
	mu   sync.Mutex
	rows map[string]*supabase.Purchase
}

func (a *memArchive) SavePurchase(_ context.Context, p *supabase.Purchase) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rows[p.SessionID] = p
	return nil
}

func (a *memArchive) GetPurchase(_ context.Context, sessionID string) (*supabase.Purchase, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.rows[sessionID]
	if !ok {
		return nil, receipts.ErrNotFound
	}
	return p, nil
}

type testEnv struct {
	server  *Server
	meta    *fakeMeta
	files   *httptest.Server
	archive *memArchive
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()

	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := receiptFiles[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(files.Close)

	meta := &fakeMeta{}
	metaSrv := httptest.NewServer(meta)
	t.Cleanup(metaSrv.Close)

	reporter, err := capi.New(capi.Config{PixelID: "px", AccessToken: "tok", BaseURL: metaSrv.URL})
	require.NoError(t, err)

	text := document.TextSourceFunc(func(_ context.Context, data []byte) (string, error) {
		return receiptTexts[string(data)], nil
	})

	archive := &memArchive{rows: map[string]*supabase.Purchase{}}
	ledger := session.NewLedger(drivers.NewInMemoryStore())
	orch, err := purchase.New(purchase.Config{
		Ledger:   ledger,
		Archive:  archive,
		Fetcher:  document.NewHTTPFetcher(document.FetcherConfig{Timeout: 5 * time.Second}),
		Text:     document.Sources{PDF: text, Image: text},
		Reporter: reporter,
	})
	require.NoError(t, err)

	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Purchases == nil {
		opts.Purchases = archive
	}
	return &testEnv{
		server:  New(orch, ledger, opts),
		meta:    meta,
		files:   files,
		archive: archive,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, gjson.Result) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.Router.ServeHTTP(rec, req)
	return rec, gjson.Parse(rec.Body.String())
}

func (e *testEnv) parse(t *testing.T, customer, file string) gjson.Result {
	t.Helper()
	rec, body := e.do(t, http.MethodPost, "/kinbox/parse",
		`{"customerPlatformId":"`+customer+`","attachment_url":"`+e.files.URL+file+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return body
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec, _ := env.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, healthText, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestID_Propagated(t *testing.T) {
	env := newTestEnv(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	env.server.Router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestParse_Validation(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec, body := env.do(t, http.MethodPost, "/kinbox/parse", `{"attachment_url":"https://x/y.pdf"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, body.Get("ok").Bool())
	assert.Equal(t, "customerPlatformId obrigatório", body.Get("error").String())

	rec, body = env.do(t, http.MethodPost, "/kinbox/parse", `{"customerPlatformId":"c"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "attachment_url obrigatório", body.Get("error").String())

	rec, _ = env.do(t, http.MethodPost, "/kinbox/parse", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParse_BodyLimit(t *testing.T) {
	env := newTestEnv(t, Options{MaxBodyBytes: 64})

	big := `{"customerPlatformId":"` + strings.Repeat("x", 200) + `"}`
	rec, _ := env.do(t, http.MethodPost, "/kinbox/parse", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestParse_AcceptedAndSessionSnapshot(t *testing.T) {
	env := newTestEnv(t, Options{})

	body := env.parse(t, "cust-1", "/pix.pdf")
	assert.True(t, body.Get("ok").Bool())
	assert.Equal(t, "accepted", body.Get("data.outcome").String())
	assert.Equal(t, "10.00", body.Get("data.valor").Raw)
	assert.Equal(t, 0.95, body.Get("data.confidence").Float())
	assert.Equal(t, "E00000000202501011200abcd", body.Get("data.txid").String())
	assert.Equal(t, "pdf", body.Get("data.document.kind").String())
	assert.Equal(t, "primary", body.Get("data.session.items.0.kind").String())
	assert.Contains(t, body.Get("message").String(), "R$ 10,00")

	rec, snap := env.do(t, http.MethodGet, "/sessions/cust-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10.00", snap.Get("data.valorTotal").Raw)
	assert.Equal(t, "open", snap.Get("data.status").String())
	assert.Equal(t, body.Get("data.session.sessionId").String(), snap.Get("data.sessionId").String())

	rec, _ = env.do(t, http.MethodGet, "/sessions/nobody", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestParse_ValueNotRead(t *testing.T) {
	env := newTestEnv(t, Options{})

	body := env.parse(t, "cust-1", "/blank.png")
	assert.Equal(t, "value_not_read", body.Get("data.outcome").String())
	assert.Equal(t, "null", body.Get("data.valor").Raw)
	assert.Equal(t, "image", body.Get("data.document.kind").String())
	assert.False(t, body.Get("data.session").Exists())
}

func TestParse_DocumentUnavailable(t *testing.T) {
	env := newTestEnv(t, Options{})

	body := env.parse(t, "cust-1", "/missing.pdf")
	assert.Equal(t, "document_unavailable", body.Get("data.outcome").String())
}

func TestFinalize_ReportsOnce(t *testing.T) {
	env := newTestEnv(t, Options{})
	parsed := env.parse(t, "cust-1", "/pix.pdf")
	sessionID := parsed.Get("data.session.sessionId").String()

	rec, body := env.do(t, http.MethodPost, "/kinbox/finalizar",
		`{"customerPlatformId":"cust-1","phone":"+55 85 98888-7777","email":"a@b.com"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Compra finalizada", body.Get("message").String())
	assert.Equal(t, "closed", body.Get("data.session.status").String())
	assert.Equal(t, "trace-1", body.Get("data.reportId").String())

	require.Equal(t, 1, env.meta.count())
	ev := env.meta.events[0]
	assert.Equal(t, "kinbox-"+sessionID, ev.Get("event_id").String())
	assert.Equal(t, "10.00", ev.Get("custom_data.value").Raw)
	assert.Equal(t, capi.HashIdentifier("5585988887777"), ev.Get("user_data.ph.0").String())

	rec, body = env.do(t, http.MethodPost, "/kinbox/finalizar", `{"customerPlatformId":"cust-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Get("data.alreadyReported").Bool())
	assert.Equal(t, 1, env.meta.count())
}

func TestFinalize_UsesPhoneFromParse(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec, _ := env.do(t, http.MethodPost, "/kinbox/parse",
		`{"customerPlatformId":"cust-1","attachment_url":"`+env.files.URL+`/pix.pdf","phone":"+55 85 98888-7777"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = env.do(t, http.MethodPost, "/kinbox/finalizar", `{"customerPlatformId":"cust-1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Equal(t, 1, env.meta.count())
	assert.Equal(t, capi.HashIdentifier("5585988887777"), env.meta.events[0].Get("user_data.ph.0").String())
}

func TestGetPurchase(t *testing.T) {
	env := newTestEnv(t, Options{})
	parsed := env.parse(t, "cust-1", "/pix.pdf")
	sessionID := parsed.Get("data.session.sessionId").String()

	rec, _ := env.do(t, http.MethodPost, "/kinbox/finalizar", `{"customerPlatformId":"cust-1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, body := env.do(t, http.MethodGet, "/purchases/"+sessionID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, sessionID, body.Get("data.sessionId").String())
	assert.Equal(t, "cust-1", body.Get("data.customerPlatformId").String())
	assert.Equal(t, "closed", body.Get("data.status").String())
	assert.Equal(t, "BRL", body.Get("data.currency").String())
	assert.Equal(t, "10.00", body.Get("data.valorTotal").Raw)
	assert.Equal(t, int64(1), body.Get("data.itemCount").Int())
	assert.Equal(t, "E00000000202501011200abcd", body.Get("data.txids.0").String())
	assert.Equal(t, "trace-1", body.Get("data.reportId").String())

	rec, _ = env.do(t, http.MethodGet, "/purchases/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFinalize_ReportFailure(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.parse(t, "cust-1", "/pix.pdf")
	env.meta.fail.Store(true)

	rec, body := env.do(t, http.MethodPost, "/kinbox/finalizar", `{"customerPlatformId":"cust-1"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.False(t, body.Get("ok").Bool())
	assert.Contains(t, body.Get("error").String(), "service unavailable")
	assert.Equal(t, "closed", body.Get("data.session.status").String())

	rec, _ = env.do(t, http.MethodPost, "/kinbox/finalizar", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTestPixel(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec, body := env.do(t, http.MethodGet, "/test-pixel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Get("ok").Bool())
	assert.Equal(t, "trace-1", body.Get("data.reportId").String())

	ev := env.meta.events[0]
	assert.Equal(t, "teste-123", ev.Get("event_id").String())
	assert.Equal(t, "website", ev.Get("action_source").String())
	assert.Equal(t, "9.90", ev.Get("custom_data.value").Raw)

	env.meta.fail.Store(true)
	rec, _ = env.do(t, http.MethodGet, "/test-pixel", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

package offline

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// testConfig builds a compiled config pointed at origin with the in-memory
// storage backend.
func testConfig(t *testing.T, origin string) Config {
	t.Helper()
	var cfg Config
	cfg.Server.Origin = origin
	cfg.Storage.Backend = "memory"
	cfg.applyDefaults()
	if err := cfg.compile(); err != nil {
		t.Fatalf("compile config: %v", err)
	}
	return cfg
}

func newTestService(t *testing.T, origin string) *Service {
	t.Helper()
	svc, err := NewService(testConfig(t, origin))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

// failingTransport simulates a fully dead network: every round trip errors.
type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("network down")
}

func disableNetwork(svc *Service) {
	svc.httpClient.Transport = failingTransport{}
}

func doRequest(svc *Service, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, req)
	return rec
}

func TestPassthroughForwardsNonGet(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(r.Method + ":" + string(body)))
	}))
	defer origin.Close()

	svc := newTestService(t, origin.URL)

	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader("payload"))
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got=%d want=%d", rec.Code, http.StatusCreated)
	}
	if got := rec.Body.String(); got != "POST:payload" {
		t.Fatalf("body: got=%q want=%q", got, "POST:payload")
	}
	if got := rec.Header().Get(cacheHeader); got != provBypass {
		t.Fatalf("provenance: got=%q want=%q", got, provBypass)
	}
}

func TestPassthroughBadGateway(t *testing.T) {
	svc := newTestService(t, "http://origin.test")
	disableNetwork(svc)

	rec := doRequest(svc, http.MethodPost, "/submit", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status: got=%d want=%d", rec.Code, http.StatusBadGateway)
	}
	if got := rec.Header().Get(cacheHeader); got != provBadGateway {
		t.Fatalf("provenance: got=%q want=%q", got, provBadGateway)
	}
}

func TestHealthzReportsState(t *testing.T) {
	svc := newTestService(t, "http://origin.test")

	rec := doRequest(svc, http.MethodGet, controlPrefix+"healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got=%d want=%d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("body missing ok status: %s", rec.Body.String())
	}
}

func TestStoresEndpointListsStores(t *testing.T) {
	svc := newTestService(t, "http://origin.test")

	name := svc.cfg.storeName(ClassStatic)
	err := svc.storage.Store(name).Put("GET origin.test/app.js", CacheEntry{
		Status: http.StatusOK,
		Header: http.Header{},
		Body:   []byte("body"),
	})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}

	rec := doRequest(svc, http.MethodGet, controlPrefix+"stores", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got=%d want=%d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), name) {
		t.Fatalf("body missing store %q: %s", name, rec.Body.String())
	}
}

func TestEnsureExposedHeaderMerges(t *testing.T) {
	h := http.Header{}
	ensureExposedHeader(h, cacheHeader)
	if got := h.Get("Access-Control-Expose-Headers"); got != cacheHeader {
		t.Fatalf("expose: got=%q want=%q", got, cacheHeader)
	}

	ensureExposedHeader(h, cacheHeader)
	if got := h.Get("Access-Control-Expose-Headers"); got != cacheHeader {
		t.Fatalf("expose after repeat: got=%q want=%q", got, cacheHeader)
	}

	h.Set("Access-Control-Expose-Headers", "X-Other")
	ensureExposedHeader(h, cacheHeader)
	want := "X-Other, " + cacheHeader
	if got := h.Get("Access-Control-Expose-Headers"); got != want {
		t.Fatalf("expose merged: got=%q want=%q", got, want)
	}
}

func TestRateLimitedLoggerSuppresses(t *testing.T) {
	l := newRateLimitedLogger(time.Hour)
	l.Printf("first")
	l.Printf("second")
	if l.dropped != 1 {
		t.Fatalf("dropped: got=%d want=1", l.dropped)
	}
}

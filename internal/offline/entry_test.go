package offline

import (
	"testing"
	"time"
)

func TestEnvelopeExpiryBoundary(t *testing.T) {
	capturedAt := time.Unix(1_700_000_000, 0)
	env := Envelope{Payload: []byte(`[]`), CapturedAt: capturedAt.Unix()}
	maxAge := 10 * time.Minute

	if env.Expired(capturedAt, maxAge) {
		t.Fatal("fresh envelope reported expired")
	}
	// Exactly maxAge old is still served; staleness is strictly greater.
	if env.Expired(capturedAt.Add(maxAge), maxAge) {
		t.Fatal("envelope at exactly maxAge reported expired")
	}
	if !env.Expired(capturedAt.Add(maxAge+time.Second), maxAge) {
		t.Fatal("envelope past maxAge not reported expired")
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	b, err := encodeEnvelope([]byte(`{"pilots":[]}`), 1234)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	env, err := decodeEnvelope(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(env.Payload) != `{"pilots":[]}` {
		t.Fatalf("payload: got=%q", env.Payload)
	}
	if env.CapturedAt != 1234 {
		t.Fatalf("capturedAt: got=%d want=1234", env.CapturedAt)
	}
}

func TestRequestKeyNormalization(t *testing.T) {
	cases := []struct {
		host, uri string
		want      string
	}{
		{"Origin.Test", "/api/pilots", "GET origin.test/api/pilots"},
		{"origin.test:80", "/api/pilots", "GET origin.test/api/pilots"},
		{"origin.test:443", "/api/pilots?x=1", "GET origin.test/api/pilots?x=1"},
		{"origin.test:8080", "/", "GET origin.test:8080/"},
		{"origin.test", "", "GET origin.test/"},
	}
	for _, tc := range cases {
		got := requestKey("GET", tc.host, tc.uri)
		if got != tc.want {
			t.Fatalf("requestKey(%q, %q): got=%q want=%q", tc.host, tc.uri, got, tc.want)
		}
	}
}

package offline

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// CacheEntry is one cached response. Entries are opaque, atomically replaced
// blobs: a strategy either overwrites the whole entry or leaves it alone.
// For the API class the Body holds a serialized Envelope; every other class
// stores the raw response body.
type CacheEntry struct {
	Status     int
	Header     http.Header
	Body       []byte
	CapturedAt int64 // unix seconds
}

// Envelope wraps an API payload with its capture time so the fallback path
// can decide staleness without trusting response headers.
type Envelope struct {
	Payload    []byte `json:"payload"`
	CapturedAt int64  `json:"capturedAt"`
}

// Expired reports whether the envelope is older than maxAge at now.
// An envelope exactly maxAge old is still served.
func (e Envelope) Expired(now time.Time, maxAge time.Duration) bool {
	return now.Unix()-e.CapturedAt > int64(maxAge/time.Second)
}

func encodeEnvelope(payload []byte, capturedAt int64) ([]byte, error) {
	return json.Marshal(Envelope{Payload: payload, CapturedAt: capturedAt})
}

func decodeEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(b, &env)
	return env, err
}

// requestKey normalizes a GET request to its cache identity: method plus
// host, path and query of the resolved target. Fragments never reach the
// server; default ports are stripped so direct and proxied forms collide.
func requestKey(method, host, uri string) string {
	host = strings.ToLower(host)
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimSuffix(host, ":443")
	if uri == "" {
		uri = "/"
	}
	return method + " " + host + uri
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	dec := gob.NewDecoder(bytes.NewReader(b))
	return dec.Decode(v)
}

func cloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vs := range h {
		vv := make([]string, len(vs))
		copy(vv, vs)
		out[k] = vv
	}
	return out
}

func init() {
	// Ensure http.Header is registered for gob.
	gob.Register(http.Header{})
}

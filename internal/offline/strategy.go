package offline

import (
	"net/http"
	"net/url"
	"time"
)

// Cache provenance values carried on X-Fleet-Cache. The dashboard reads them
// to decide whether it is looking at live or degraded data.
const (
	provLive        = "live"        // response came from the origin just now
	provHit         = "hit"         // served from cache, no origin contact
	provMiss        = "miss"        // fetched from origin and stored
	provStale       = "stale"       // origin down, served a captured envelope
	provOffline     = "offline"     // origin down, synthesized fallback body
	provPlaceholder = "placeholder" // origin down, fixed placeholder image
	provShell       = "shell"       // origin down, served from the app shell
	provBypass      = "bypass"      // passed through without caching
	provBadGateway  = "bad-gateway" // passthrough origin unreachable
)

// dispatch routes one classified GET to its strategy. Every strategy resolves
// every fault internally: whatever the network and the stores do, exactly one
// response is written and nothing escapes to the handler boundary.
func (s *Service) dispatch(w http.ResponseWriter, r *http.Request, class ResourceClass) {
	target := s.resolveTarget(r)
	key := cacheKey(target)

	switch class {
	case ClassStatic:
		s.serveStatic(w, r, target, key)
	case ClassAPI:
		s.serveAPI(w, r, target, key)
	case ClassImage:
		s.serveImage(w, r, target, key)
	case ClassNavigation:
		s.serveNavigation(w, r, target, key)
	}
}

func cacheKey(target *url.URL) string {
	return requestKey(http.MethodGet, target.Host, target.RequestURI())
}

// serveStatic is cache-first with no revalidation: a hit is returned verbatim
// for as long as the store version lives.
func (s *Service) serveStatic(w http.ResponseWriter, r *http.Request, target *url.URL, key string) {
	store := s.storage.Store(s.cfg.storeName(ClassStatic))
	if ent, err := store.Get(key); err == nil {
		s.writeEntry(w, ent, provHit)
		return
	}

	cap, err := s.fetchOrigin(r.Context(), target, r.Header)
	if err != nil {
		s.writeText(w, http.StatusServiceUnavailable, staticUnavailableBody, provOffline)
		return
	}
	if !cap.ok() {
		// Upstream error: pass through uncached.
		s.writeCapture(w, cap, provLive)
		return
	}

	if s.cacheable(cap.Body) {
		_ = store.Put(key, CacheEntry{
			Status:     cap.Status,
			Header:     cap.Header,
			Body:       cap.Body,
			CapturedAt: s.clock().Unix(),
		})
	}
	s.writeCapture(w, cap, provMiss)
}

// serveAPI is network-first with a TTL fallback. A live success is returned
// unmodified and captured into a fresh envelope; on transport failure the
// envelope is served while it is younger than the API max age, after which
// the generic offline payload takes over.
func (s *Service) serveAPI(w http.ResponseWriter, r *http.Request, target *url.URL, key string) {
	store := s.storage.Store(s.cfg.storeName(ClassAPI))

	cap, err := s.fetchOrigin(r.Context(), target, r.Header)
	if err == nil {
		if cap.ok() && s.cacheable(cap.Body) {
			s.captureEnvelope(store, key, cap)
		}
		s.writeCapture(w, cap, provLive)
		return
	}

	s.markSyncPending()

	ent, gerr := store.Get(key)
	if gerr == nil {
		env, derr := decodeEnvelope(ent.Body)
		if derr == nil && !env.Expired(s.clock(), s.cfg.Cache.apiMaxAgeDur) {
			ent.Body = env.Payload
			s.writeEnvelopeEntry(w, ent, env)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	s.writeBytes(w, http.StatusOK, offlineAPIBody(), provOffline)
}

func (s *Service) captureEnvelope(store Store, key string, cap capture) {
	body, err := encodeEnvelope(cap.Body, s.clock().Unix())
	if err != nil {
		return
	}
	_ = store.Put(key, CacheEntry{
		Status:     cap.Status,
		Header:     cap.Header,
		Body:       body,
		CapturedAt: s.clock().Unix(),
	})
}

func (s *Service) writeEnvelopeEntry(w http.ResponseWriter, ent CacheEntry, env Envelope) {
	for k, vs := range ent.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	capturedAt := time.Unix(env.CapturedAt, 0).UTC().Format(time.RFC3339)
	w.Header().Set(capturedAtHeader, capturedAt)
	setCacheHeaders(w.Header(), provStale)
	ensureExposedHeader(w.Header(), capturedAtHeader)
	w.WriteHeader(ent.Status)
	_, _ = w.Write(ent.Body)
	s.stats.observe(provStale, len(ent.Body))
}

// serveImage is cache-first with a network fallback; when both come up empty
// it degrades to the fixed placeholder, never an error status.
func (s *Service) serveImage(w http.ResponseWriter, r *http.Request, target *url.URL, key string) {
	store := s.storage.Store(s.cfg.storeName(ClassImage))
	if ent, err := store.Get(key); err == nil {
		s.writeEntry(w, ent, provHit)
		return
	}

	cap, err := s.fetchOrigin(r.Context(), target, r.Header)
	if err != nil {
		w.Header().Set("Content-Type", "image/svg+xml")
		s.writeBytes(w, http.StatusOK, placeholderImage, provPlaceholder)
		return
	}
	if !cap.ok() {
		s.writeCapture(w, cap, provLive)
		return
	}

	if s.cacheable(cap.Body) {
		_ = store.Put(key, CacheEntry{
			Status:     cap.Status,
			Header:     cap.Header,
			Body:       cap.Body,
			CapturedAt: s.clock().Unix(),
		})
	}
	s.writeCapture(w, cap, provMiss)
}

// serveNavigation is app-shell network-first: the origin is tried once and
// any response it produces is returned directly. Successful pages are copied
// into the shell store; on transport failure the fallback order is exact
// match, root path, configured offline page, then the inline offline
// document.
func (s *Service) serveNavigation(w http.ResponseWriter, r *http.Request, target *url.URL, key string) {
	shell := s.storage.Store(s.cfg.storeName(ClassNavigation))

	cap, err := s.fetchOrigin(r.Context(), target, r.Header)
	if err == nil {
		if cap.ok() && s.cacheable(cap.Body) {
			_ = shell.Put(key, CacheEntry{
				Status:     cap.Status,
				Header:     cap.Header,
				Body:       cap.Body,
				CapturedAt: s.clock().Unix(),
			})
		}
		s.writeCapture(w, cap, provLive)
		return
	}

	for _, k := range []string{
		key,
		cacheKey(s.originJoin("/")),
		cacheKey(s.originJoin(s.cfg.Shell.OfflinePath)),
	} {
		if ent, ok := s.shellLookup(shell, k); ok {
			s.writeEntry(w, ent, provShell)
			return
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	s.writeBytes(w, http.StatusOK, offlinePage, provOffline)
}

// shellLookup checks the shell store first, then the static store where the
// install step precached the app shell.
func (s *Service) shellLookup(shell Store, key string) (CacheEntry, bool) {
	if ent, err := shell.Get(key); err == nil {
		return ent, true
	}
	static := s.storage.Store(s.cfg.storeName(ClassStatic))
	if ent, err := static.Get(key); err == nil {
		return ent, true
	}
	return CacheEntry{}, false
}

func (s *Service) cacheable(body []byte) bool {
	max := s.cfg.Storage.maxEntryBytes
	return max <= 0 || int64(len(body)) <= max
}

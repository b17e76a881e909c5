package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	cacheHeader      = "X-Fleet-Cache"
	capturedAtHeader = "X-Fleet-Captured-At"

	controlPrefix = "/_offline/"
)

// Service is the offline worker: it owns the stores, intercepts every
// request through Handler, and runs the lifecycle, sync and push flows.
type Service struct {
	cfg        Config
	httpClient *http.Client
	classifier *Classifier
	storage    Storage
	worker     *Worker
	hub        *Hub
	stats      *statsCollector

	// clock is the single time source; tests inject a fake.
	clock func() time.Time

	syncPending atomic.Bool
	pendingLog  *rateLimitedLogger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewService(cfg Config) (*Service, error) {
	storage, err := openStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	s := &Service{
		cfg:        cfg,
		httpClient: &http.Client{},
		classifier: newClassifier(cfg),
		storage:    storage,
		worker:     NewWorker(),
		hub:        NewHub(),
		stats:      newStatsCollector(),
		clock:      time.Now,
		pendingLog: newRateLimitedLogger(time.Minute),
		stopCh:     make(chan struct{}),
	}

	s.worker.On(EventInstall, s.install)
	s.worker.On(EventActivate, s.activate)
	s.worker.On(EventSync, s.runSync)
	s.worker.On(EventPush, s.handlePush)

	return s, nil
}

// Start runs the install and activate events to completion, then starts the
// background loops. The service serves traffic only after activation.
func (s *Service) Start(ctx context.Context) error {
	if err := s.worker.Dispatch(ctx, Event{Type: EventInstall}); err != nil {
		return err
	}
	if err := s.worker.Dispatch(ctx, Event{Type: EventActivate}); err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.monitorLoop()
	}()

	if s.cfg.Logging.logStatsEveryDur > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.statsLoop(s.cfg.Logging.logStatsEveryDur)
		}()
	}
	return nil
}

func (s *Service) Close() {
	close(s.stopCh)
	s.wg.Wait()
	_ = s.storage.Close()
}

func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+controlPrefix+"healthz", s.handleHealthz)
	mux.HandleFunc("GET "+controlPrefix+"events", s.handleEvents)
	mux.HandleFunc("GET "+controlPrefix+"stores", s.handleStores)
	mux.HandleFunc("POST "+controlPrefix+"push", s.handlePushIngest)
	mux.HandleFunc("POST "+controlPrefix+"notifications/click", s.handleNotificationClick)
	mux.HandleFunc("POST "+controlPrefix+"sync", s.handleSyncTrigger)
	mux.HandleFunc("/", s.handle)
	return mux
}

// handle is the interception boundary: classify, then either dispatch a
// strategy or pass the request through untouched.
func (s *Service) handle(w http.ResponseWriter, r *http.Request) {
	target := *r.URL
	if target.Host == "" {
		// Server-side request URLs carry no host; the Host header is the
		// authority the classifier's data-host rule matches against.
		target.Host = r.Host
	}
	class := s.classifier.Classify(r.Method, &target, r.Header)
	if class == ClassUnhandled {
		s.passthrough(w, r)
		return
	}
	s.dispatch(w, r, class)
}

// passthrough forwards an unhandled request verbatim. It is the only path
// that answers with an error status on origin failure.
func (s *Service) passthrough(w http.ResponseWriter, r *http.Request) {
	cap, err := s.forwardOrigin(r)
	if err != nil {
		setCacheHeaders(w.Header(), provBadGateway)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		s.stats.observe(provBadGateway, 0)
		return
	}
	s.writeCapture(w, cap, provBypass)
}

// ---- response writers ----

func (s *Service) writeEntry(w http.ResponseWriter, ent CacheEntry, prov string) {
	for k, vs := range ent.Header {
		if strings.EqualFold(k, cacheHeader) {
			continue
		}
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	setCacheHeaders(w.Header(), prov)
	w.WriteHeader(ent.Status)
	_, _ = w.Write(ent.Body)
	s.stats.observe(prov, len(ent.Body))
}

func (s *Service) writeCapture(w http.ResponseWriter, cap capture, prov string) {
	s.writeEntry(w, CacheEntry{Status: cap.Status, Header: cap.Header, Body: cap.Body}, prov)
}

func (s *Service) writeBytes(w http.ResponseWriter, status int, body []byte, prov string) {
	setCacheHeaders(w.Header(), prov)
	w.WriteHeader(status)
	_, _ = w.Write(body)
	s.stats.observe(prov, len(body))
}

func (s *Service) writeText(w http.ResponseWriter, status int, body string, prov string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	s.writeBytes(w, status, []byte(body), prov)
}

func setCacheHeaders(h http.Header, prov string) {
	if prov != "" {
		h.Set(cacheHeader, prov)
	}
	// Custom headers are not readable from browser JS in a CORS context
	// unless explicitly exposed.
	ensureExposedHeader(h, cacheHeader)
}

func ensureExposedHeader(h http.Header, name string) {
	const expose = "Access-Control-Expose-Headers"
	cur := h.Values(expose)
	if len(cur) == 0 {
		h.Set(expose, name)
		return
	}
	merged := strings.Join(cur, ",")
	for _, part := range strings.Split(merged, ",") {
		if strings.EqualFold(strings.TrimSpace(part), name) {
			return
		}
	}
	h.Set(expose, strings.TrimSpace(merged)+", "+name)
}

// ---- control endpoints ----

func (s *Service) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"state":   s.worker.State().String(),
		"version": s.cfg.Cache.Version,
		"clients": s.hub.Count(),
	})
}

// handleEvents is the client context stream: every connected dashboard tab
// holds one of these open and receives sync and notification broadcasts.
func (s *Service) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client, release := s.hub.Subscribe()
	defer release()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.stopCh:
			return
		case msg := <-client.ch:
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Service) handleStores(w http.ResponseWriter, _ *http.Request) {
	names, err := s.storage.Names()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	infos := make([]StoreInfo, 0, len(names))
	for _, name := range names {
		info, err := s.storage.Store(name).Info()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		infos = append(infos, info)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"version": s.cfg.Cache.Version,
		"stores":  infos,
	})
}

func (s *Service) handleSyncTrigger(w http.ResponseWriter, r *http.Request) {
	if err := s.worker.Dispatch(r.Context(), Event{Type: EventSync, Tag: s.cfg.Sync.Tag}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Service) statsLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			s.logStats()
		}
	}
}

func (s *Service) logStats() {
	var entries int
	var bytes int64
	names, err := s.storage.Names()
	if err == nil {
		for _, name := range names {
			if info, err := s.storage.Store(name).Info(); err == nil {
				entries += info.Entries
				bytes += info.Bytes
			}
		}
	}

	line := fmt.Sprintf(
		"stats: clients=%d entries=%d stored=%s %s",
		s.hub.Count(), entries, formatBytes(bytes), s.stats.summary(),
	)
	if rss, ok := processRSSBytes(); ok {
		line += " rss=" + formatBytes(int64(rss))
	}
	log.Print(line)
}

func init() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
}

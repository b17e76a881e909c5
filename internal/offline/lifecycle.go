package offline

import (
	"context"
	"log"
	"net/http"

	"golang.org/x/sync/errgroup"
)

const installParallelism = 8

// install pre-populates the static store with every path in the critical
// resource manifest. Individual fetch failures are logged and skipped: a
// partly warmed shell beats no shell, and the static strategy will fill the
// gaps on first demand. Install always ends by skipping the staged handover.
func (s *Service) install(ctx context.Context, _ Event) error {
	s.worker.setState(StateInstalling)

	static := s.storage.Store(s.cfg.storeName(ClassStatic))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(installParallelism)
	for _, path := range s.cfg.Shell.Precache {
		path := path
		g.Go(func() error {
			target := s.originJoin(path)
			cap, err := s.fetchOrigin(ctx, target, http.Header{})
			if err != nil {
				log.Printf("install: precache %s: %v", path, err)
				return nil
			}
			if !cap.ok() {
				log.Printf("install: precache %s: status %d", path, cap.Status)
				return nil
			}
			if err := static.Put(cacheKey(target), CacheEntry{
				Status:     cap.Status,
				Header:     cap.Header,
				Body:       cap.Body,
				CapturedAt: s.clock().Unix(),
			}); err != nil {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.worker.SkipWaiting()
	s.worker.setState(StateInstalled)
	log.Printf("install: precached %d paths into %s", len(s.cfg.Shell.Precache), s.cfg.storeName(ClassStatic))
	return nil
}

// activate prunes every store whose name is not in the current version's
// four-name allow-list, materializes the four current stores, then claims
// all connected clients. Requests racing the prune may still read an
// outgoing store; that window is accepted.
func (s *Service) activate(_ context.Context, _ Event) error {
	s.worker.setState(StateActivating)

	allowed := s.cfg.allowedStoreNames()
	names, err := s.storage.Names()
	if err != nil {
		return err
	}
	for _, name := range names {
		if allowed[name] {
			continue
		}
		if err := s.storage.Delete(name); err != nil {
			return err
		}
		log.Printf("activate: pruned store %s", name)
	}

	for name := range allowed {
		s.storage.Store(name)
	}

	s.hub.ClaimAll(s.cfg.Cache.Version)
	s.worker.setState(StateActive)
	log.Printf("activate: version %s controlling %d clients", s.cfg.Cache.Version, s.hub.Count())
	return nil
}

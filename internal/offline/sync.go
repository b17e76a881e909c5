package offline

import (
	"context"
	"log"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// markSyncPending records that an API origin fetch failed, making the sync
// task due the next time the connectivity probe succeeds.
func (s *Service) markSyncPending() {
	if s.syncPending.CompareAndSwap(false, true) {
		s.pendingLog.Printf("sync: task %s pending, waiting for connectivity", s.cfg.Sync.Tag)
	}
}

// monitorLoop is the deferred-task trigger: while a sync task is pending it
// probes the origin on every tick and fires the sync event on the first
// successful probe.
func (s *Service) monitorLoop() {
	if s.cfg.Sync.initialDelayDur > 0 {
		select {
		case <-s.stopCh:
			return
		case <-time.After(s.cfg.Sync.initialDelayDur):
		}
	}

	t := time.NewTicker(s.cfg.Sync.probeEveryDur)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			if !s.syncPending.Load() {
				continue
			}
			if !s.probeOrigin() {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			if err := s.worker.Dispatch(ctx, Event{Type: EventSync, Tag: s.cfg.Sync.Tag}); err != nil {
				log.Printf("sync: %v", err)
			}
			cancel()
		}
	}
}

func (s *Service) probeOrigin() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cap, err := s.fetchOrigin(ctx, s.originJoin(s.cfg.Sync.ProbePath), http.Header{})
	return err == nil && cap.ok()
}

// runSync replays the fixed endpoint set with settle-all semantics: every
// endpoint is fetched regardless of the others, failures are logged and
// dropped, and successes land in the API store exactly the way a live
// request would capture them. A completion broadcast always follows.
func (s *Service) runSync(ctx context.Context, ev Event) error {
	store := s.storage.Store(s.cfg.storeName(ClassAPI))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(installParallelism)
	for _, endpoint := range s.cfg.Sync.Endpoints {
		endpoint := endpoint
		g.Go(func() error {
			target := s.originJoin(endpoint)
			cap, err := s.fetchOrigin(ctx, target, http.Header{})
			if err != nil {
				log.Printf("sync: replay %s: %v", endpoint, err)
				return nil
			}
			if !cap.ok() {
				log.Printf("sync: replay %s: status %d", endpoint, cap.Status)
				return nil
			}
			s.captureEnvelope(store, cacheKey(target), cap)
			return nil
		})
	}
	_ = g.Wait()

	s.syncPending.Store(false)
	s.hub.Broadcast(syncCompleteMessage{
		Type:      "SYNC_COMPLETE",
		Timestamp: s.clock().UnixMilli(),
	})
	log.Printf("sync: task %s replayed %d endpoints", ev.Tag, len(s.cfg.Sync.Endpoints))
	return nil
}

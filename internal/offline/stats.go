package offline

import (
	"fmt"
	"sync/atomic"
)

// statsCollector counts responses per provenance so the periodic stats line
// can show how often the proxy is serving live, cached and degraded data.
type statsCollector struct {
	live        atomic.Uint64
	hits        atomic.Uint64
	misses      atomic.Uint64
	stale       atomic.Uint64
	offline     atomic.Uint64
	placeholder atomic.Uint64
	shell       atomic.Uint64
	bypass      atomic.Uint64
	badGateway  atomic.Uint64

	servedBytes atomic.Uint64
}

func newStatsCollector() *statsCollector {
	return &statsCollector{}
}

func (s *statsCollector) observe(prov string, respBytes int) {
	if respBytes > 0 {
		s.servedBytes.Add(uint64(respBytes))
	}
	switch prov {
	case provLive:
		s.live.Add(1)
	case provHit:
		s.hits.Add(1)
	case provMiss:
		s.misses.Add(1)
	case provStale:
		s.stale.Add(1)
	case provOffline:
		s.offline.Add(1)
	case provPlaceholder:
		s.placeholder.Add(1)
	case provShell:
		s.shell.Add(1)
	case provBypass:
		s.bypass.Add(1)
	case provBadGateway:
		s.badGateway.Add(1)
	}
}

// degraded is every response that substituted for an unreachable origin.
func (s *statsCollector) degraded() uint64 {
	return s.stale.Load() + s.offline.Load() + s.placeholder.Load() + s.shell.Load()
}

func (s *statsCollector) summary() string {
	return fmt.Sprintf(
		"live=%d hit=%d miss=%d degraded=%d bypass=%d bad-gateway=%d served=%s",
		s.live.Load(),
		s.hits.Load(),
		s.misses.Load(),
		s.degraded(),
		s.bypass.Load(),
		s.badGateway.Load(),
		formatBytes(int64(s.servedBytes.Load())),
	)
}

package offline

import (
	"log"
	"sync"
	"time"
)

// rateLimitedLogger suppresses repeats of a noisy message, keeping at most
// one line per interval. Used where a dead origin or a slow client would
// otherwise flood the log on every request or tick.
type rateLimitedLogger struct {
	mu       sync.Mutex
	lastAt   time.Time
	interval time.Duration
	dropped  int
}

func newRateLimitedLogger(interval time.Duration) *rateLimitedLogger {
	return &rateLimitedLogger{interval: interval}
}

func (l *rateLimitedLogger) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if !l.lastAt.IsZero() && now.Sub(l.lastAt) < l.interval {
		l.dropped++
		return
	}
	if l.dropped > 0 {
		format += " (%d similar suppressed)"
		args = append(args, l.dropped)
		l.dropped = 0
	}
	l.lastAt = now
	log.Printf(format, args...)
}

package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// authFailureLimiter blocks client keys that fail upload authorization too
// often. Each key gets a token bucket of maxFailures refilled over window;
// draining it blocks the key for blockedFor.
type authFailureLimiter struct {
	mu            sync.Mutex
	entries       map[string]*authFailureEntry
	maxFailures   int
	window        time.Duration
	blockedFor    time.Duration
	staleAfter    time.Duration
	opCount       int
	cleanupEveryN int
}

type authFailureEntry struct {
	bucket       *rate.Limiter
	blockedUntil time.Time
	lastSeenAt   time.Time
}

func newAuthFailureLimiter(maxFailures int, window, blockedFor time.Duration) *authFailureLimiter {
	if maxFailures <= 0 || window <= 0 || blockedFor <= 0 {
		return nil
	}
	staleAfter := window
	if blockedFor > staleAfter {
		staleAfter = blockedFor
	}
	staleAfter *= 2
	if staleAfter < 10*time.Minute {
		staleAfter = 10 * time.Minute
	}
	return &authFailureLimiter{
		entries:       make(map[string]*authFailureEntry),
		maxFailures:   maxFailures,
		window:        window,
		blockedFor:    blockedFor,
		staleAfter:    staleAfter,
		cleanupEveryN: 64,
	}
}

func (l *authFailureLimiter) newBucket() *rate.Limiter {
	return rate.NewLimiter(rate.Every(l.window/time.Duration(l.maxFailures)), l.maxFailures)
}

// Allow reports whether key may attempt authorization at now.
func (l *authFailureLimiter) Allow(key string, now time.Time) bool {
	if l == nil || key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.maybeCleanupLocked(now)

	entry, ok := l.entries[key]
	if !ok {
		return true
	}
	entry.lastSeenAt = now
	if !entry.blockedUntil.IsZero() && now.Before(entry.blockedUntil) {
		return false
	}
	entry.blockedUntil = time.Time{}
	return true
}

// RegisterFailure records one failed attempt and blocks key once its bucket
// is empty.
func (l *authFailureLimiter) RegisterFailure(key string, now time.Time) {
	if l == nil || key == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.maybeCleanupLocked(now)

	entry, ok := l.entries[key]
	if !ok {
		entry = &authFailureEntry{bucket: l.newBucket()}
		l.entries[key] = entry
	}
	entry.lastSeenAt = now

	if !entry.bucket.AllowN(now, 1) || entry.bucket.TokensAt(now) < 1 {
		entry.blockedUntil = now.Add(l.blockedFor)
		entry.bucket = l.newBucket()
	}
}

// Reset forgets key after a successful authorization.
func (l *authFailureLimiter) Reset(key string) {
	if l == nil || key == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

func (l *authFailureLimiter) maybeCleanupLocked(now time.Time) {
	l.opCount++
	if l.cleanupEveryN <= 0 {
		l.cleanupEveryN = 64
	}
	if l.opCount%l.cleanupEveryN != 0 {
		return
	}
	for key, entry := range l.entries {
		if entry.lastSeenAt.IsZero() || now.Sub(entry.lastSeenAt) > l.staleAfter {
			delete(l.entries, key)
		}
	}
}

// clientKey identifies the caller for throttling: the first X-Forwarded-For
// hop when proxy headers are trusted, otherwise the connection's IP.
func (s *Server) clientKey(r *http.Request) string {
	if s.opts.TrustProxyHeaders {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

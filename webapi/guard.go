// This file contains the operator token guard: bcrypt verification of the
// bearer token on admin endpoints, with per-IP attempt limiting against
// brute force.
package webapi

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"ai_backend/core"
)

// Guard errors.
var (
	// ErrEmptyToken is returned when configuring a guard without a token.
	ErrEmptyToken = errors.New("webapi: operator token cannot be empty")
)

// Defaults for the attempt limiter.
const (
	// DefaultGuardMaxAttempts is failed attempts before an IP is blocked.
	DefaultGuardMaxAttempts = 5

	// DefaultGuardWindow is the window failed attempts are counted in.
	DefaultGuardWindow = time.Minute

	// DefaultGuardBlock is how long an IP stays blocked after the limit.
	DefaultGuardBlock = 5 * time.Minute
)

// TokenGuard protects operator endpoints. The operator token is stored only
// as a bcrypt hash; each request's bearer token is verified against it.
// Failed verifications count against a per-IP sliding window so the hash
// cannot be brute forced through the endpoint.
type TokenGuard struct {
	tokenHash []byte

	mu       sync.Mutex
	attempts map[string]core.AttemptRecord

	maxAttempts int
	window      time.Duration
	block       time.Duration

	logger *zap.Logger
}

// GuardConfig tunes the attempt limiter.
type GuardConfig struct {
	// MaxAttempts is failed attempts before blocking (default: 5)
	MaxAttempts int

	// Window is the counting window (default: 1m)
	Window time.Duration

	// Block is the block duration once the limit is hit (default: 5m)
	Block time.Duration
}

// DefaultGuardConfig returns the default limiter configuration.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		MaxAttempts: DefaultGuardMaxAttempts,
		Window:      DefaultGuardWindow,
		Block:       DefaultGuardBlock,
	}
}

// NewTokenGuard hashes the plaintext operator token and returns a guard.
func NewTokenGuard(token string, logger *zap.Logger) (*TokenGuard, error) {
	return NewTokenGuardWithConfig(token, DefaultGuardConfig(), logger)
}

// NewTokenGuardWithConfig hashes the token with bcrypt and builds a guard
// with a custom limiter configuration.
func NewTokenGuardWithConfig(token string, cfg GuardConfig, logger *zap.Logger) (*TokenGuard, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultGuardMaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultGuardWindow
	}
	if cfg.Block <= 0 {
		cfg.Block = DefaultGuardBlock
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	return &TokenGuard{
		tokenHash:   hash,
		attempts:    make(map[string]core.AttemptRecord),
		maxAttempts: cfg.MaxAttempts,
		window:      cfg.Window,
		block:       cfg.Block,
		logger:      logger.Named("guard"),
	}, nil
}

// Middleware wraps a handler with token verification. Requests without a
// valid "Authorization: Bearer <token>" header get 401; blocked IPs get 429
// with a Retry-After header.
func (g *TokenGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		if blocked, remaining := g.isBlocked(ip); blocked {
			w.Header().Set("Retry-After", strconv.Itoa(int(remaining.Seconds())+1))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED",
				"too many failed attempts")
			return
		}

		token := bearerToken(r)
		if token == "" || !g.verify(token) {
			g.recordFailure(ip)
			g.logger.Warn("operator auth failed",
				zap.String("remote", ip),
				zap.String("path", r.URL.Path))
			writeError(w, http.StatusUnauthorized, "FORBIDDEN",
				"invalid operator token")
			return
		}

		g.clear(ip)
		next.ServeHTTP(w, r)
	})
}

// verify checks the token against the stored bcrypt hash.
func (g *TokenGuard) verify(token string) bool {
	return bcrypt.CompareHashAndPassword(g.tokenHash, []byte(token)) == nil
}

func (g *TokenGuard) isBlocked(ip string) (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	record, ok := g.attempts[ip]
	if !ok || record.ShouldReset() {
		return false, 0
	}
	if record.IsBlocked(g.maxAttempts) {
		return true, record.TimeUntilReset()
	}
	return false, 0
}

func (g *TokenGuard) recordFailure(ip string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	record, ok := g.attempts[ip]
	if !ok || record.ShouldReset() {
		g.attempts[ip] = core.NewAttemptRecordWithWindow(g.window)
		return
	}

	record = record.Increment()
	if record.Count == g.maxAttempts {
		// Hitting the limit extends the window to the block duration.
		record.ResetAt = time.Now().Add(g.block)
	}
	g.attempts[ip] = record
}

func (g *TokenGuard) clear(ip string) {
	g.mu.Lock()
	delete(g.attempts, ip)
	g.mu.Unlock()
}

// Cleanup removes expired attempt records and returns how many were removed.
func (g *TokenGuard) Cleanup() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for ip, record := range g.attempts {
		if record.ShouldReset() {
			delete(g.attempts, ip)
			removed++
		}
	}
	return removed
}

// AttemptCount returns the tracked failure count for an IP, zero when the
// window has expired.
func (g *TokenGuard) AttemptCount(ip string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	record, ok := g.attempts[ip]
	if !ok || record.ShouldReset() {
		return 0
	}
	return record.Count
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return auth[len(prefix):]
}

// clientIP returns the request's remote IP without the port. chi's RealIP
// middleware rewrites RemoteAddr from forwarding headers upstream of this.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

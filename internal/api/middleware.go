package api

import (
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Auth validates the bearer token and resolves the caller's user id
// into c.Locals("user_id"). Token issuance lives with the identity
// collaborator; only validation happens here. When the token carries a
// session id, the session is validated too, which refreshes its
// sliding TTL.
type Auth struct {
	secret   []byte
	sessions SessionManager
	log      *zap.Logger
}

func NewAuth(secret string, sessions SessionManager, log *zap.Logger) *Auth {
	return &Auth{secret: []byte(secret), sessions: sessions, log: log}
}

func (a *Auth) userFromToken(tokenStr string) (string, string, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return "", "", errors.New("invalid or expired token")
	}

	var uid string
	if v, ok := claims["user_id"].(string); ok && v != "" {
		uid = v
	} else if v, ok := claims["sub"].(string); ok && v != "" {
		uid = v
	} else {
		return "", "", errors.New("missing user id in token")
	}
	sid, _ := claims["sid"].(string)
	return uid, sid, nil
}

func (a *Auth) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		tokenStr := strings.TrimPrefix(header, "Bearer ")
		if tokenStr == "" || tokenStr == header {
			// websocket clients pass the token as a query param
			tokenStr = c.Query("token")
		}
		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization"})
		}

		uid, sid, err := a.userFromToken(tokenStr)
		if err != nil {
			a.log.Debug("jwt rejected", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
		}
		if sid != "" && a.sessions != nil {
			if _, err := a.sessions.Validate(c.Context(), uid, sid); err != nil {
				a.log.Debug("session rejected", zap.String("user", uid), zap.Error(err))
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "session expired"})
			}
			c.Locals("session_id", sid)
		}
		c.Locals("user_id", uid)
		return c.Next()
	}
}

// IPRateLimiter throttles per client IP with a token bucket; stale
// visitors are swept out periodically.
type IPRateLimiter struct {
	visitors sync.Map
	rps      rate.Limit
	burst    int
	log      *zap.Logger
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewIPRateLimiter(perMinute int, log *zap.Logger) *IPRateLimiter {
	l := &IPRateLimiter{
		rps:   rate.Limit(float64(perMinute) / 60.0),
		burst: 5,
		log:   log,
	}
	go l.cleanupVisitors()
	return l
}

func (l *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	if v, ok := l.visitors.Load(ip); ok {
		vi := v.(*visitor)
		vi.lastSeen = time.Now()
		return vi.limiter
	}
	lim := rate.NewLimiter(l.rps, l.burst)
	l.visitors.Store(ip, &visitor{limiter: lim, lastSeen: time.Now()})
	return lim
}

func (l *IPRateLimiter) cleanupVisitors() {
	for {
		time.Sleep(time.Minute)
		cutoff := time.Now().Add(-5 * time.Minute)
		l.visitors.Range(func(k, v interface{}) bool {
			if v.(*visitor).lastSeen.Before(cutoff) {
				l.visitors.Delete(k)
			}
			return true
		})
	}
}

func (l *IPRateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := clientIP(c)
		if !l.getLimiter(ip).Allow() {
			l.log.Warn("rate limit exceeded", zap.String("ip", ip), zap.String("path", c.Path()))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
		}
		return c.Next()
	}
}

func clientIP(c *fiber.Ctx) string {
	ip := c.IP()
	if ip == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return ip
}

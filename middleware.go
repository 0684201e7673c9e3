package main

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// httpError carries the status and the visitor-safe message of a failed
// request. Err is only logged.
type httpError struct {
	Code    int
	Message string
	Details any
	Err     error
}

func (e *httpError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *httpError) Unwrap() error { return e.Err }

// apiResponse is the JSON envelope of the /api endpoints.
type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"`
}

func respondOK(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, apiResponse{Success: true, Message: message, Data: data})
}

// errorHandler renders the last error attached with c.Error as JSON.
// Internal details never reach the client.
func errorHandler(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		var herr *httpError
		if errors.As(err, &herr) {
			if herr.Code >= http.StatusInternalServerError {
				log.Error("request failed", "path", c.Request.URL.Path, "error", err)
			}
			c.JSON(herr.Code, apiResponse{Message: herr.Message, Error: herr.Details})
			return
		}
		log.Error("unexpected error", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, apiResponse{Message: "An unexpected error occurred. Please try again later."})
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter hands out one token bucket per client IP.
type ipRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	every   rate.Limit
	burst   int
}

func newIPRateLimiter(perMinute int) *ipRateLimiter {
	return &ipRateLimiter{
		entries: make(map[string]*limiterEntry),
		every:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
	}
}

func (l *ipRateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.every, l.burst)}
		l.entries[ip] = e
	}
	e.lastSeen = time.Now()
	return e.limiter
}

// cleanup forgets clients not seen for longer than idle.
func (l *ipRateLimiter) cleanup(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-idle)
	for ip, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, ip)
		}
	}
}

func (l *ipRateLimiter) middleware(onReject func(c *gin.Context)) gin.HandlerFunc {
	return func(c *gin.Context) {
		lim := l.get(c.ClientIP())
		if !lim.Allow() {
			r := lim.Reserve()
			retry := r.Delay()
			r.Cancel()
			c.Header("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
			onReject(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

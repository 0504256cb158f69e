package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"taskService/internal/logger"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const RequestIdKey contextKey = "request_id"

const HeaderRequestID = "X-Request-ID"

func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestId := r.Header.Get(HeaderRequestID)
		if requestId == "" {
			requestId = uuid.New().String()
		}

		w.Header().Set(HeaderRequestID, requestId)

		ctx := context.WithValue(r.Context(), RequestIdKey, requestId)
		r = r.WithContext(ctx)

		next.ServeHTTP(w, r)
	})
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIdKey).(string); ok {
		return id
	}
	return ""
}

type loggingWriter struct {
	http.ResponseWriter
	status      int
	size        int
	wroteHeader bool
}

func (lw *loggingWriter) WriteHeader(code int) {
	if !lw.wroteHeader {
		lw.status = code
		lw.wroteHeader = true
		lw.ResponseWriter.WriteHeader(code)
	}
}

func (lw *loggingWriter) Write(b []byte) (int, error) {
	if !lw.wroteHeader {
		lw.WriteHeader(http.StatusOK)
	}

	n, err := lw.ResponseWriter.Write(b)
	lw.size += n
	return n, err
}

// routePattern - шаблон маршрута chi (/tasks/{id}), известен только после роутинга
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestId := GetRequestID(r.Context())

		logger.Info(
			"HTTP_IN: Начало запроса",
			zap.String("request_id", requestId),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("query", r.URL.RawQuery),
			zap.String("client_ip", r.RemoteAddr),
		)

		lw := &loggingWriter{
			ResponseWriter: w,
			status:         http.StatusOK,
		}
		next.ServeHTTP(lw, r)

		logLevel := zap.InfoLevel
		if lw.status >= 400 && lw.status < 500 {
			logLevel = zap.WarnLevel
		} else if lw.status >= 500 {
			logLevel = zap.ErrorLevel
		}
		logger.Log(
			logLevel,
			"HTTP_OUT: Завершение запроса",
			zap.String("request_id", requestId),
			zap.String("route", routePattern(r)),
			zap.Int("status", lw.status),
			zap.Int("bytes_written", lw.size),
			zap.Duration("ms", time.Since(start)),
		)
	})
}

// Recover превращает панику в обработчике в 500, процесс продолжает работу
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			logger.Logger.Error("HTTP: Паника в обработчике",
				zap.Any("panic", rec),
				zap.String("request_id", GetRequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Stack("stack"))

			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error": "Internal server error",
				"code":  "INTERNAL_ERROR",
			})
		}()

		next.ServeHTTP(w, r)
	})
}

type clientWindow struct {
	count   int
	resetAt time.Time
}

// rateLimiter - фиксированное окно на IP. Истёкшие окна вычищаются
// не чаще раза в окно.
type rateLimiter struct {
	limit     int
	window    time.Duration
	now       func() time.Time
	mtx       sync.Mutex
	clients   map[string]*clientWindow
	nextSweep time.Time
}

func newRateLimiter(limit int, window time.Duration, now func() time.Time) *rateLimiter {
	return &rateLimiter{
		limit:     limit,
		window:    window,
		now:       now,
		clients:   make(map[string]*clientWindow),
		nextSweep: now().Add(window),
	}
}

// allow учитывает запрос и возвращает остаток, время сброса и решение
func (l *rateLimiter) allow(ip string) (remaining int, resetAt time.Time, ok bool) {
	now := l.now()

	l.mtx.Lock()
	defer l.mtx.Unlock()

	if now.After(l.nextSweep) {
		l.sweep(now)
	}

	client, exists := l.clients[ip]
	if !exists || now.After(client.resetAt) {
		client = &clientWindow{resetAt: now.Add(l.window)}
		l.clients[ip] = client
	}

	if client.count >= l.limit {
		return 0, client.resetAt, false
	}

	client.count++
	return max(l.limit-client.count, 0), client.resetAt, true
}

func (l *rateLimiter) sweep(now time.Time) {
	for ip, client := range l.clients {
		if now.After(client.resetAt) {
			delete(l.clients, ip)
		}
	}
	l.nextSweep = now.Add(l.window)
}

func (l *rateLimiter) tracked() int {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return len(l.clients)
}

func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getIp(r)

		remaining, resetAt, ok := l.allow(ip)
		if !ok {
			retryAfter := int(resetAt.Sub(l.now()).Seconds())

			logger.Warn("HTTP: Превышен лимит запросов",
				zap.String("client_ip", ip),
				zap.Int("limit", l.limit))

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":       "Too many requests",
				"code":        "RATE_LIMIT_EXCEEDED",
				"retry_after": retryAfter,
				"request_id":  GetRequestID(r.Context()),
			})
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		next.ServeHTTP(w, r)
	})
}

// RateLimit - rpm запросов в минуту на IP. rpm <= 0 отключает лимит.
func RateLimit(rpm int) func(http.Handler) http.Handler {
	if rpm <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return newRateLimiter(rpm, time.Minute, time.Now).middleware
}

func getIp(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("HTTP: Ошибка записи ответа", err)
	}
}

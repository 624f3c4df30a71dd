package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/escrow/internal/handlers/render"
	"github.com/nkiryanov/escrow/internal/handlers/userctx"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"

	idempotencyPrefix = "idempotency:v1:"
	inProgressMarker  = "__in_progress__"
	cacheTimeout      = 2 * time.Second
)

type idempotencyLogger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type storedResponse struct {
	Status  int               `json:"status"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// Captures the response to replay it later
type recordWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *recordWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *recordWriter) Write(p []byte) (int, error) {
	w.body.Write(p)
	return w.ResponseWriter.Write(p)
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// Keys are scoped by the authenticated user and the endpoint, so it must run after AuthMiddleware.
// A key seen while its first request is still running gets 409.
// Server errors are not stored and the key may be retried.
func Idempotency(cache redis.Cmdable, ttl time.Duration, l idempotencyLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" {
				render.ServiceError(w, "Missing Idempotency-Key header", http.StatusBadRequest)
				return
			}

			cacheKey := idempotencyCacheKey(r, key)

			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), cacheTimeout)
			defer cancel()

			reserved, err := cache.SetNX(ctx, cacheKey, inProgressMarker, ttl).Result()
			if err != nil {
				l.Error("idempotency reservation failed", "key", key, "error", err)
				render.ServiceError(w, "Idempotency store failure", http.StatusInternalServerError)
				return
			}

			if !reserved {
				replay(ctx, w, cache, cacheKey, l)
				return
			}

			rw := &recordWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			if rw.status >= http.StatusInternalServerError {
				cache.Del(ctx, cacheKey)
				return
			}

			stored := storedResponse{
				Status:  rw.status,
				Body:    rw.body.String(),
				Headers: make(map[string]string),
			}
			for _, h := range []string{"Content-Type", "Location"} {
				if v := rw.Header().Get(h); v != "" {
					stored.Headers[h] = v
				}
			}

			payload, err := json.Marshal(stored)
			if err != nil {
				l.Error("failed to encode idempotent response", "key", key, "error", err)
				cache.Del(ctx, cacheKey)
				return
			}

			if err := cache.Set(ctx, cacheKey, payload, ttl).Err(); err != nil {
				l.Error("failed to persist idempotent response", "key", key, "error", err)
				cache.Del(ctx, cacheKey)
			}
		})
	}
}

// Same key sent to another endpoint is another request
func idempotencyCacheKey(r *http.Request, key string) string {
	scope := r.Method + " " + r.URL.Path
	if id := userctx.UserID(r.Context()); id != uuid.Nil {
		scope = id.String() + ":" + scope
	}
	return idempotencyPrefix + scope + ":" + key
}

func replay(ctx context.Context, w http.ResponseWriter, cache redis.Cmdable, cacheKey string, l idempotencyLogger) {
	cached, err := cache.Get(ctx, cacheKey).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Expired or released between SetNX and Get
		render.ServiceError(w, "Duplicate request, retry later", http.StatusConflict)
		return
	case err != nil:
		l.Error("idempotency lookup failed", "error", err)
		render.ServiceError(w, "Idempotency store failure", http.StatusInternalServerError)
		return
	case cached == inProgressMarker:
		render.ServiceError(w, "Duplicate request currently processing", http.StatusConflict)
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(cached), &stored); err != nil {
		l.Warn("failed to decode stored idempotent response", "error", err)
		render.ServiceError(w, "Duplicate request", http.StatusConflict)
		return
	}

	for h, v := range stored.Headers {
		w.Header().Set(h, v)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write([]byte(stored.Body))
}

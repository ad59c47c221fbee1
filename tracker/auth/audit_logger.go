package auth

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"thesis_tracker/tracker/utils"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func clientIp(r *http.Request) string {
	for _, header := range []string{"X-Real-Ip", "X-Forwarded-For"} {
		if ip := r.Header.Get(header); ip != "" {
			return ip
		}
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// requestParams collects route params (thesis_id, submission_id, ...) and
// query params of the request as two slog groups.
func requestParams(r *http.Request) []interface{} {
	route := make([]interface{}, 0)
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for i, key := range rctx.URLParams.Keys {
			if key != "*" {
				route = append(route, slog.String(key, rctx.URLParams.Values[i]))
			}
		}
	}

	query := make([]interface{}, 0)
	for k, v := range r.URL.Query() {
		query = append(query, slog.String(k, strings.Join(v, ";")))
	}

	return []interface{}{slog.Group("path_params", route...), slog.Group("query_params", query...)}
}

// AuditLogger writes one json line per authenticated request, including
// refused ones, so that every attempt to change a thesis is on record.
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(stream io.Writer) AuditLogger {
	return AuditLogger{logger: slog.New(slog.NewJSONHandler(stream, nil))}
}

func (log *AuditLogger) Middleware(next http.Handler) http.Handler {
	handler := func(w http.ResponseWriter, r *http.Request) {
		account, err := AccountFromContext(r)
		if err != nil {
			utils.WriteError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		attrs := []interface{}{
			"email", account.Email,
			"account_id", account.Id,
			"kind", account.Kind,
			"client_ip", clientIp(r),
			"method", r.Method,
			"url", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		attrs = append(attrs, requestParams(r)...)

		if ww.Status() >= http.StatusBadRequest {
			log.logger.Warn("request refused", attrs...)
		} else {
			log.logger.Info("request", attrs...)
		}
	}
	return http.HandlerFunc(handler)
}

package api

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

const msgTooManyRequests = "Too many requests. Please try again later."

// importRateLimit limits import requests per client IP.
// Returns 429 Too Many Requests when the limit is exceeded.
func (s *Server) importRateLimit(ctx huma.Context, next func(huma.Context)) {
	if s.importLimiter == nil {
		next(ctx)
		return
	}

	key := clientIP(ctx.RemoteAddr())
	if !s.importLimiter.Allow(key) {
		s.logger.Warn("Rate limit exceeded",
			slog.String("ip", key),
			slog.String("path", ctx.URL().Path))
		_ = huma.WriteErr(s.api, ctx, http.StatusTooManyRequests, msgTooManyRequests)
		return
	}

	next(ctx)
}

// clientIP strips the port from a remote address. The RealIP middleware has
// already applied X-Forwarded-For and X-Real-IP.
func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

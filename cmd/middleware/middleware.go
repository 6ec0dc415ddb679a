package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"
)

const RequestIDHeader = "X-Request-ID"

// LoggingMiddleware writes one access log line per request. Query strings are
// left out since they may carry ticket ids.
func LoggingMiddleware() func(*ginext.Context) {
	return func(c *ginext.Context) {
		start := time.Now()

		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(RequestIDHeader, reqID)

		c.Next()

		status := c.Writer.Status()
		event := zlog.Logger.Info()
		switch {
		case status >= 500:
			event = zlog.Logger.Error()
		case status >= 400:
			event = zlog.Logger.Warn()
		}
		event.
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

func SecurityHeaders() func(*ginext.Context) {
	return func(c *ginext.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

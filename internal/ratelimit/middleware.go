package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wb-go/wbf/ginext"

	"festpass/internal/dto"
)

// Endpoint names used as the second half of the limiter key.
const (
	EndpointCreateOrder   = "create-order"
	EndpointVerifyPayment = "verify-payment"
)

// ClientIdentity picks the caller's address: the first X-Forwarded-For hop,
// then X-Real-IP, then the socket peer.
func ClientIdentity(c *ginext.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(c.GetHeader("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}

// Guard admits requests to endpoint through the limiter and answers 429
// without calling the handler when the window is exhausted.
func (l *Limiter) Guard(endpoint string) func(*ginext.Context) {
	return func(c *ginext.Context) {
		res := l.Admit(c.Request.Context(), ClientIdentity(c), endpoint)

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(res.RetryAfter(time.Now())))
			dto.ErrorResponse(c, http.StatusTooManyRequests, dto.RateLimited, "Too many requests. Please try again later.")
			return
		}
		c.Next()
	}
}

package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:   http.StatusBadRequest,
		KindCapacity:     http.StatusBadRequest,
		KindAuthenticity: http.StatusBadRequest,
		KindUnauthorized: http.StatusUnauthorized,
		KindForbidden:    http.StatusForbidden,
		KindNotFound:     http.StatusNotFound,
		KindConflict:     http.StatusConflict,
		KindRateLimited:  http.StatusTooManyRequests,
		KindUpstream:     http.StatusInternalServerError,
		KindInternal:     http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, kind.HTTPStatus(), kind.String())
	}
}

func TestKindOfThroughWrapping(t *testing.T) {
	base := Conflict("ALREADY_CHECKED_IN", "Already checked in")
	wrapped := fmt.Errorf("check in: %w", base)

	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindConflict))
	assert.True(t, HasCode(wrapped, "ALREADY_CHECKED_IN"))
	assert.False(t, HasCode(wrapped, "CONFLICT"))

	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestUpstreamKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Upstream(cause, "Payment gateway is unavailable")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "SERVICE_UNAVAILABLE", err.CodeOrKind())
	assert.Contains(t, err.Error(), "refused")
}

func TestWithDetail(t *testing.T) {
	err := New(KindConflict, "x").WithDetail("checked_in_at", "now")
	assert.Equal(t, "now", err.Details["checked_in_at"])
}

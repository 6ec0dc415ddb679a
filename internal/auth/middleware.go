package auth

import (
	"strings"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"

	"festpass/internal/dto"
	"festpass/internal/model"
)

const (
	ctxStaffID = "auth.staff_id"
	ctxRole    = "auth.role"
)

// RequireStaff rejects requests without a valid bearer token. With roles given,
// the token's role must be one of them.
func (s *TokenService) RequireStaff(roles ...model.StaffRole) func(*ginext.Context) {
	return func(c *ginext.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			dto.UnauthorizedError(c, "missing bearer token")
			return
		}
		claims, err := s.Validate(strings.TrimSpace(raw))
		if err != nil {
			dto.AppError(c, err)
			return
		}
		if len(roles) > 0 && !hasRole(claims.Role, roles) {
			dto.ForbiddenError(c)
			return
		}
		id, _ := uuid.Parse(claims.StaffID)
		c.Set(ctxStaffID, id)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

func hasRole(role model.StaffRole, allowed []model.StaffRole) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

// StaffID is the authenticated staff id set by RequireStaff.
func StaffID(c *ginext.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ctxStaffID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

func Role(c *ginext.Context) model.StaffRole {
	v, _ := c.Get(ctxRole)
	r, _ := v.(model.StaffRole)
	return r
}

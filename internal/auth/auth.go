// Package auth authenticates festival staff and guards the admin routes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"festpass/internal/apperr"
	"festpass/internal/model"
	"festpass/internal/repo"
)

type StaffStore interface {
	GetStaffByEmail(ctx context.Context, email string) (*model.Staff, error)
}

type Session struct {
	Token     string
	ExpiresAt time.Time
	Staff     *model.Staff
}

type Authenticator struct {
	store  StaffStore
	tokens *TokenService
	// compared against when the email is unknown so both paths cost one bcrypt run
	decoy string
}

func NewAuthenticator(store StaffStore, tokens *TokenService) *Authenticator {
	decoy, _ := HashPassword("festpass-decoy-password")
	return &Authenticator{store: store, tokens: tokens, decoy: decoy}
}

func (a *Authenticator) Tokens() *TokenService { return a.tokens }

func (a *Authenticator) Login(ctx context.Context, email, password string) (*Session, error) {
	invalid := apperr.New(apperr.KindUnauthorized, "Invalid credentials").WithCode("INVALID_CREDENTIALS")

	staff, err := a.store.GetStaffByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			CheckPassword(a.decoy, password)
			return nil, invalid
		}
		return nil, fmt.Errorf("auth: load staff: %w", err)
	}
	if !CheckPassword(staff.PasswordHash, password) {
		return nil, invalid
	}

	token, expires, err := a.tokens.Issue(staff)
	if err != nil {
		return nil, fmt.Errorf("auth: issue token: %w", err)
	}
	return &Session{Token: token, ExpiresAt: expires, Staff: staff}, nil
}

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"festpass/internal/apperr"
	"festpass/internal/model"
)

const DefaultTokenTTL = 12 * time.Hour

// Claims are the staff access token claims.
type Claims struct {
	StaffID string          `json:"staff_id"`
	Role    model.StaffRole `json:"role"`
	jwt.RegisteredClaims
}

type TokenService struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

func NewTokenService(signingKey, issuer string, ttl time.Duration) (*TokenService, error) {
	if signingKey == "" {
		return nil, errors.New("auth: jwt signing key is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		ttl:        ttl,
		now:        time.Now,
	}, nil
}

func (s *TokenService) Issue(staff *model.Staff) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		StaffID: staff.ID.String(),
		Role:    staff.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   staff.Email,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.New(apperr.KindUnauthorized, "token has expired")
		}
		return nil, apperr.New(apperr.KindUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, apperr.New(apperr.KindUnauthorized, "invalid token claims")
	}
	if _, err := uuid.Parse(claims.StaffID); err != nil {
		return nil, apperr.New(apperr.KindUnauthorized, "invalid token claims")
	}
	return claims, nil
}

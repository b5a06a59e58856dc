// Package auth identifies the current user from a bearer token and signs
// users out by revoking their token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrRevoked      = errors.New("token revoked")
)

// User is the authenticated caller. Only ID keys progress records.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Claims are the token claims the service reads.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Session is a verified token.
type Session struct {
	User      User
	TokenID   string
	ExpiresAt time.Time
}

// Verifier checks HS256 tokens and consults the revocation list.
type Verifier struct {
	secret  []byte
	issuer  string
	revoked Revocations
	parser  *jwt.Parser
}

// NewVerifier creates a verifier. An empty issuer accepts any issuer.
func NewVerifier(secret, issuer string, revoked Revocations) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is empty")
	}
	if revoked == nil {
		revoked = NewMemoryRevocations()
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	return &Verifier{
		secret:  []byte(secret),
		issuer:  issuer,
		revoked: revoked,
		parser:  jwt.NewParser(opts...),
	}, nil
}

// Verify parses and validates a raw token.
func (v *Verifier) Verify(ctx context.Context, raw string) (Session, error) {
	if raw == "" {
		return Session{}, ErrMissingToken
	}

	var claims Claims
	_, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Session{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	if claims.ID != "" {
		revoked, err := v.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return Session{}, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return Session{}, ErrRevoked
		}
	}

	s := Session{
		User: User{
			ID:          claims.Subject,
			Email:       claims.Email,
			DisplayName: claims.Name,
		},
		TokenID: claims.ID,
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// Issue signs a token for user valid for ttl. Tokens are normally minted by
// the identity provider; this serves local development and tests.
func (v *Verifier) Issue(user User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: user.Email,
		Name:  user.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    v.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// SignOut revokes the session's token until it would have expired anyway.
func (v *Verifier) SignOut(ctx context.Context, s Session) error {
	if s.TokenID == "" {
		return fmt.Errorf("%w: token has no id", ErrInvalidToken)
	}
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return v.revoked.Revoke(ctx, s.TokenID, ttl)
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

type sessionKey struct{}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom returns the session stored in ctx, if any.
func SessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}

// CurrentUser returns the authenticated user, or nil when there is none.
func CurrentUser(ctx context.Context) *User {
	s, ok := SessionFrom(ctx)
	if !ok {
		return nil
	}
	u := s.User
	return &u
}

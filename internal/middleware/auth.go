// Package middleware provides HTTP middlewares for authentication and logging.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/atinyakov/NoPass/internal/models"
)

type ctxKey string

const userKey ctxKey = "user"

// Authenticator attaches the caller's identity to the request context.
//
// A verified TLS client certificate wins: its Common Name is the user ID.
// Otherwise an "Authorization: Bearer" session token is verified with the
// shared secret (HS256) and its subject is the user ID. A request that
// carries no credentials passes through without an identity and is
// rejected later by the identity gate; a request with a bad token is
// rejected here.
type Authenticator struct {
	secret []byte
	issuer string
}

// NewAuthenticator creates an Authenticator. An empty secret disables
// bearer tokens. A non-empty issuer is required to match the iss claim.
func NewAuthenticator(secret []byte, issuer string) *Authenticator {
	return &Authenticator{secret: secret, issuer: issuer}
}

// Middleware returns the authenticating http.Handler wrapper.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS != nil && len(r.TLS.VerifiedChains) > 0 && len(r.TLS.PeerCertificates) > 0 {
			cert := r.TLS.PeerCertificates[0]
			if cert.Subject.CommonName != "" {
				next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), cert.Subject.CommonName)))
				return
			}
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			http.Error(w, "malformed authorization header", http.StatusUnauthorized)
			return
		}

		userID, err := a.Verify(strings.TrimSpace(raw))
		if err != nil {
			http.Error(w, "invalid session token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// Verify checks a session token and returns its subject.
func (a *Authenticator) Verify(token string) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("session tokens are disabled")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

// NewSessionToken signs a session token for userID valid for ttl.
func NewSessionToken(secret []byte, issuer, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if issuer != "" {
		claims.Issuer = issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// WithUserID returns a context carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey, userID)
}

// GetUserIDFromContext extracts the user ID from the request context.
// Returns an empty string if not found.
func GetUserIDFromContext(ctx context.Context) string {
	val := ctx.Value(userKey)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}

// ContextGate resolves identities attached by Authenticator.
type ContextGate struct{}

// ResolveIdentity returns the user ID on ctx or models.ErrUnauthenticated.
func (ContextGate) ResolveIdentity(ctx context.Context) (string, error) {
	if id := GetUserIDFromContext(ctx); id != "" {
		return id, nil
	}
	return "", models.ErrUnauthenticated
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// HeaderToken is the header the board client sends its token in.
const HeaderToken = "x-auth-token"

var ErrUnauthenticated = errors.New("unauthenticated")

// Claims is the token payload: {"user":{"id":...}, "exp":...}.
type Claims struct {
	User User `json:"user"`
	jwt.RegisteredClaims
}

type User struct {
	ID string `json:"id"`
}

// Resolver verifies and mints HS256 tokens with one shared secret.
type Resolver struct {
	secret []byte
	now    func() time.Time
}

func NewResolver(secret string) *Resolver {
	return &Resolver{secret: []byte(secret), now: time.Now}
}

// Issue mints a token for ownerID that expires after ttl.
func (r *Resolver) Issue(ownerID string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(ownerID) == "" {
		return "", fmt.Errorf("owner id is required")
	}
	now := r.now()
	claims := Claims{
		User: User{ID: ownerID},
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// ResolveCaller returns the owner id carried by a valid token. Every
// failure, including a token without exp, is ErrUnauthenticated.
func (r *Resolver) ResolveCaller(credential string) (string, error) {
	if credential == "" {
		return "", ErrUnauthenticated
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(credential, &claims, func(*jwt.Token) (interface{}, error) {
		return r.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(r.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if strings.TrimSpace(claims.User.ID) == "" {
		return "", fmt.Errorf("%w: token has no user id", ErrUnauthenticated)
	}
	return claims.User.ID, nil
}

// Credential extracts the token from x-auth-token, falling back to a
// bearer Authorization header.
func Credential(r *http.Request) string {
	if tok := strings.TrimSpace(r.Header.Get(HeaderToken)); tok != "" {
		return tok
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

type ctxKey struct{}

// WithOwner returns a copy of ctx carrying ownerID.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, ownerID)
}

// OwnerFromContext returns the owner id stored by Middleware.
func OwnerFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// Middleware rejects requests without a valid token and stores the caller's
// owner id in the request context. unauthorized writes the 401 response.
func (r *Resolver) Middleware(unauthorized func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ownerID, err := r.ResolveCaller(Credential(req))
			if err != nil {
				unauthorized(w, req, err)
				return
			}
			next.ServeHTTP(w, req.WithContext(WithOwner(req.Context(), ownerID)))
		})
	}
}

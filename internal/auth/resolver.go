package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"liveclass/pkg/types"
)

var (
	ErrMissingToken  = errors.New("token is missing")
	ErrInvalidToken  = errors.New("token is invalid")
	ErrTokenExpired  = errors.New("token has expired")
	ErrMissingUserID = errors.New("token has no subject")
)

// Claims is the token payload. The subject is the user id; name and roles
// ride along as custom claims.
type Claims struct {
	jwt.RegisteredClaims
	DisplayName string   `json:"name"`
	Roles       []string `json:"roles"`
}

// Resolver validates HMAC-signed bearer tokens and turns them into
// principals. Browsers cannot set headers on a WebSocket upgrade, so the
// token is also accepted as a query parameter.
type Resolver struct {
	secret []byte
	issuer string
}

// NewResolver creates a resolver. issuer is optional; when set, tokens from
// any other issuer are rejected.
func NewResolver(secret string, issuer string) *Resolver {
	return &Resolver{secret: []byte(secret), issuer: issuer}
}

// Resolve authenticates an HTTP request.
func (r *Resolver) Resolve(req *http.Request) (types.Principal, error) {
	tokenString := extractToken(req)
	if tokenString == "" {
		return types.Principal{}, ErrMissingToken
	}
	return r.ResolveToken(tokenString)
}

// ResolveToken authenticates a raw token string.
func (r *Resolver) ResolveToken(tokenString string) (types.Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return types.Principal{}, ErrTokenExpired
		}
		return types.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return types.Principal{}, ErrInvalidToken
	}
	if r.issuer != "" && claims.Issuer != r.issuer {
		return types.Principal{}, fmt.Errorf("%w: wrong issuer %q", ErrInvalidToken, claims.Issuer)
	}
	if claims.Subject == "" {
		return types.Principal{}, ErrMissingUserID
	}
	if !types.IsValidUserID(claims.Subject) {
		return types.Principal{}, types.ErrInvalidUserID
	}

	name := claims.DisplayName
	if name == "" {
		name = claims.Subject
	}

	return types.Principal{
		UserID:      claims.Subject,
		DisplayName: name,
		Roles:       claims.Roles,
	}, nil
}

// IssueToken mints a signed token. Used by tests and local tooling.
func (r *Resolver) IssueToken(p types.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    r.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		DisplayName: p.DisplayName,
		Roles:       p.Roles,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(r.secret)
}

func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

package auth

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenQueryParam carries the credential on the upgrade request.
// Browsers cannot set headers on a WebSocket handshake.
const TokenQueryParam = "token"

// CustomClaims defines the structure of the data stored inside the JWT.
// The subject is the identity id.
type CustomClaims struct {
	Kind domain.Kind `json:"kind"`
	jwt.RegisteredClaims
}

// Authenticator validates bearer credentials issued by the authentication service.
// It never issues tokens for real users, GenerateToken exists for tooling and tests.
type Authenticator struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

func NewAuthenticator(secret []byte, issuer string) *Authenticator {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		options = append(options, jwt.WithIssuer(issuer))
	}
	return &Authenticator{secret: secret, issuer: issuer, parser: jwt.NewParser(options...)}
}

// GenerateToken creates a signed HS256 token bound to identity.
func (a *Authenticator) GenerateToken(identity domain.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		Kind: identity.Kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    a.issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ValidateToken checks signature and expiry and returns the bound identity.
// Every failure wraps errors.ErrAuthRejected.
func (a *Authenticator) ValidateToken(tokenString string) (domain.Identity, error) {
	if tokenString == "" {
		return domain.Identity{}, fmt.Errorf("%w: token is missing", errors.ErrAuthRejected)
	}
	token, err := a.parser.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", errors.ErrAuthRejected, err)
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return domain.Identity{}, fmt.Errorf("%w: %v", errors.ErrAuthRejected, jwt.ErrSignatureInvalid)
	}
	identity := domain.NewIdentity(claims.Kind, claims.Subject)
	if err := identity.Validate(); err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", errors.ErrAuthRejected, err)
	}
	return identity, nil
}

// FromQuery authenticates a WebSocket upgrade request.
func (a *Authenticator) FromQuery(r *http.Request) (domain.Identity, error) {
	return a.ValidateToken(r.URL.Query().Get(TokenQueryParam))
}

// FromHeader authenticates a REST request carrying "Authorization: Bearer <token>".
func (a *Authenticator) FromHeader(r *http.Request) (domain.Identity, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return domain.Identity{}, fmt.Errorf("%w: authorization header is missing", errors.ErrAuthRejected)
	}
	return a.ValidateToken(strings.TrimPrefix(header, "Bearer "))
}

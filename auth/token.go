package auth

import (
	"fmt"
	"strings"
	"time"

	"match-chat/errors"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "match-chat"

// CustomClaims defines the data stored inside the JWT.
type CustomClaims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// Authenticator signs and checks bearer tokens with a shared secret.
// Without a secret, authentication is disabled and every caller is anonymous.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (a *Authenticator) Enabled() bool { return len(a.secret) > 0 }

// GenerateToken creates a signed HS256 JWT for a user.
func (a *Authenticator) GenerateToken(userID string, roles []string, duration time.Duration) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID: userID,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ValidateToken checks the signature, the algorithm and the expiration of a JWT.
func (a *Authenticator) ValidateToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid && claims.UserID != "" {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}

// Authenticate resolves the user behind an "Authorization" header value.
// An empty user id with a nil error means authentication is disabled.
func (a *Authenticator) Authenticate(header string) (string, error) {
	if !a.Enabled() {
		return "", nil
	}
	tokenStr := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if tokenStr == "" {
		return "", errors.ErrUnauthenticated
	}
	claims, err := a.ValidateToken(tokenStr)
	if err != nil {
		return "", fmt.Errorf("%w: %s", errors.ErrUnauthenticated, err)
	}
	return claims.UserID, nil
}

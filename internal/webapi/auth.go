package webapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/MarkoPoloResearchLab/spliteth/pkg/splitbill"
)

var (
	ErrInvalidToken = errors.New("invalid or expired session token")
	ErrMissingToken = errors.New("session token required")
)

const (
	contextKeyWallet      = "wallet_address"
	authorizationHeader   = "Authorization"
	authorizationBearer   = "Bearer "
	errorCodeUnauthorized = "unauthorized"
)

// SessionManager issues and validates wallet session tokens.
type SessionManager struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

// SessionClaims carries the normalized wallet address of a session.
type SessionClaims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

// NewSessionManager builds a SessionManager from the configured signing key.
func NewSessionManager(signingKey string, issuer string, ttl time.Duration) (*SessionManager, error) {
	if len(signingKey) == 0 {
		return nil, fmt.Errorf("%w: signing key is required", splitbill.ErrInvalidServiceConfig)
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionManager{signingKey: []byte(signingKey), issuer: issuer, ttl: ttl}, nil
}

// Issue creates a signed session token for the wallet address.
func (manager *SessionManager) Issue(address splitbill.Address) (string, error) {
	now := time.Now()
	claims := &SessionClaims{
		Address: address.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    manager.issuer,
			Subject:   address.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(manager.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(manager.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Validate parses a session token and returns the wallet address it names.
func (manager *SessionManager) Validate(tokenString string) (splitbill.Address, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&SessionClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return manager.signingKey, nil
		},
		jwt.WithIssuer(manager.issuer),
	)
	if err != nil {
		return splitbill.Address{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return splitbill.Address{}, ErrInvalidToken
	}
	address, err := splitbill.NewAddress(claims.Address)
	if err != nil {
		return splitbill.Address{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return address, nil
}

// GinMiddleware rejects requests without a valid bearer session token and
// stores the wallet address in the request context.
func (manager *SessionManager) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader(authorizationHeader)
		if !strings.HasPrefix(header, authorizationBearer) {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, ErrMissingToken.Error()))
			return
		}
		address, err := manager.Validate(strings.TrimPrefix(header, authorizationBearer))
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, ErrInvalidToken.Error()))
			return
		}
		ctx.Set(contextKeyWallet, address)
		ctx.Next()
	}
}

func sessionWallet(ctx *gin.Context) (splitbill.Address, bool) {
	value, ok := ctx.Get(contextKeyWallet)
	if !ok {
		return splitbill.Address{}, false
	}
	address, ok := value.(splitbill.Address)
	return address, ok
}

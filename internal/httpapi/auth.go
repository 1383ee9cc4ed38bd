package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"fundraising-escrow/internal/model"
)

const callerKey = "caller"

// Token errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSubject    = errors.New("token has no subject")
)

// IssueToken signs an HS256 token whose subject is the caller address.
func IssueToken(secret []byte, subject model.Address, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": string(subject),
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseToken validates tokenString and returns its subject.
func ParseToken(secret []byte, tokenString string) (model.Address, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrNoSubject
	}
	return model.Address(sub), nil
}

// authenticate requires a bearer token and stores its subject as the caller.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthenticated", "message": "missing bearer token"})
			return
		}
		caller, err := ParseToken(s.secret, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthenticated", "message": err.Error()})
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

func callerOf(c *gin.Context) model.Address {
	v, ok := c.Get(callerKey)
	if !ok {
		return ""
	}
	caller, _ := v.(model.Address)
	return caller
}

// Package auth guards link injection on the daemon HTTP surface with a
// shared bearer token.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrMissingToken = errors.New("auth: missing bearer token")
)

const bearerPrefix = "Bearer "

// Validator checks one presented token.
type Validator interface {
	Validate(token string) error
}

// SharedToken accepts exactly one configured token. An empty SharedToken
// rejects everything.
type SharedToken string

func (s SharedToken) Validate(token string) error {
	if s == "" || token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

type ValidatorFunc func(token string) error

func (f ValidatorFunc) Validate(token string) error {
	return f(token)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// RequireBearer aborts with 401 unless the request carries a token v accepts.
func RequireBearer(v Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := BearerToken(c.GetHeader("Authorization"))
		if err == nil {
			err = v.Validate(token)
		}
		if err != nil {
			log.Warn().
				Str("path", c.FullPath()).
				Str("client_ip", c.ClientIP()).
				Err(err).
				Msg("auth.RequireBearer rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthorized.Error()})
			return
		}
		c.Next()
	}
}

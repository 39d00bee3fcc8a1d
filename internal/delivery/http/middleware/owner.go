package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/domain"
)

const ownerKey = "owner_id"

var errNoToken = errors.New("missing bearer token")

// Owner resolves the caller's identity and stores it on the context.
//
// With a non-empty secret the caller must present an HS256 bearer token,
// either in the Authorization header or in the "token" query parameter for
// browser websocket clients; the owner is the token's "sub" claim. Without a
// secret the owner is read from header, or the "owner_id" query parameter,
// and an upstream gateway is trusted to have set it.
//
// Rejected requests are aborted with domain.ErrUnauthenticated recorded on
// the context for the router's error responder.
func Owner(secret []byte, header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var owner string
		if len(secret) > 0 {
			sub, err := subjectFromToken(bearerToken(c), secret)
			if err != nil {
				abort(c, fmt.Errorf("%w: invalid or missing credentials", domain.ErrUnauthenticated))
				return
			}
			owner = sub
		} else {
			owner = strings.TrimSpace(c.GetHeader(header))
			if owner == "" {
				owner = strings.TrimSpace(c.Query("owner_id"))
			}
		}

		if owner == "" {
			abort(c, fmt.Errorf("%w: owner identity is required", domain.ErrUnauthenticated))
			return
		}

		c.Set(ownerKey, owner)
		c.Next()
	}
}

// abort stops the chain without writing a response.
func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// OwnerID returns the identity resolved by Owner, or "" outside of it.
func OwnerID(c *gin.Context) string {
	return c.GetString(ownerKey)
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return c.Query("token")
}

func subjectFromToken(raw string, secret []byte) (string, error) {
	if raw == "" {
		return "", errNoToken
	}
	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	return token.Claims.GetSubject()
}

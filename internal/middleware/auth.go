package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"strings"

	"github.com/golang-jwt/jwt/v5" // JWT library for parsing and validating tokens
	"github.com/labstack/echo/v4"  // Echo framework used for defining middleware and handlers
)

// OptionalAuth returns an Echo middleware that extracts a strong user
// identity from a Bearer access token when one is present. Unlike a guard
// middleware it never rejects: a missing, malformed, or expired token simply
// leaves the caller with its weak network identity, because every operation
// here is open to anonymous clients and the token only upgrades how reliably
// the caller can be recognised (and banned). Browser websocket clients
// cannot set headers on the upgrade request, so the token is also accepted
// via the token query parameter.
func OptionalAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := ""
			if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				raw = strings.TrimPrefix(auth, "Bearer ")
			}
			if raw == "" {
				raw = c.QueryParam("token")
			}
			if raw == "" {
				return next(c)
			}

			// Parse with the HS256 signing method and our secret. The
			// callback supplies the signing key and rejects any other
			// algorithm.
			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				// Invalid tokens are ignored rather than rejected; the
				// caller proceeds anonymously.
				return next(c)
			}

			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return next(c)
			}
			if sub, ok := claims["sub"].(string); ok && sub != "" {
				c.Set("user_id", sub)
			}
			return next(c)
		}
	}
}

// currentUserID reads the strong user id placed in context by OptionalAuth.
// Anonymous callers resolve to "anon", which keeps rate-limit keys stable.
func currentUserID(c echo.Context) string {
	if v := c.Get("user_id"); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "anon"
}

// CurrentUserID exposes the context lookup to handlers building the
// caller's full identity for the session.
func CurrentUserID(c echo.Context) string {
	id := currentUserID(c)
	if id == "anon" {
		return ""
	}
	return id
}

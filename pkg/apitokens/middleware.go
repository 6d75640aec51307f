package apitokens

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/shishobooks/bookstore/pkg/errcodes"
)

// schemes are the accepted Authorization header prefixes.
var schemes = []string{"Bearer ", "Token "}

// Middleware provides token authentication.
type Middleware struct {
	tokenService *Service
}

// NewMiddleware creates a new token auth middleware.
func NewMiddleware(tokenService *Service) *Middleware {
	return &Middleware{
		tokenService: tokenService,
	}
}

// Authenticate requires a known token in the Authorization header and stores
// it in the context under "api_token".
func (m *Middleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		key := extractKey(c.Request().Header.Get(echo.HeaderAuthorization))
		if key == "" {
			return errcodes.Unauthorized("Authentication credentials were not provided.")
		}

		token, err := m.tokenService.GetByKey(ctx, key)
		if err != nil {
			return err
		}
		if token == nil {
			return errcodes.Unauthorized("Invalid token.")
		}

		if err := m.tokenService.Touch(ctx, token.ID); err != nil {
			// A failed timestamp write shouldn't lock the client out.
			logger.FromEchoContext(c).Err(err).Warn("failed to record api token use")
		}

		c.Set("api_token", token)

		return next(c)
	}
}

func extractKey(header string) string {
	for _, scheme := range schemes {
		if len(header) > len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) {
			return strings.TrimSpace(header[len(scheme):])
		}
	}
	return ""
}

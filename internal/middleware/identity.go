package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/moviebook/internal/model"
)

// userKey is the echo context key holding the session principal.
const userKey = "user"

// SetUser stores the authenticated user in the request context.
func SetUser(c echo.Context, u model.User) { c.Set(userKey, u) }

// CurrentUser returns the authenticated user placed in the context by the
// session middleware.
func CurrentUser(c echo.Context) (model.User, bool) {
	u, ok := c.Get(userKey).(model.User)
	return u, ok && u.ID != 0
}

// userID identifies the caller for rate limiting; anonymous callers share
// "anon".
func userID(c echo.Context) string {
	if u, ok := CurrentUser(c); ok {
		return strconv.FormatUint(u.ID, 10)
	}
	return "anon"
}

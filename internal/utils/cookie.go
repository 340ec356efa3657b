package utils

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Cookie names used for the login session.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

// SetSessionCookies stores both halves of a login session.  Both cookies are
// HttpOnly and SameSite=Lax so they ride along on same-site form posts.
func SetSessionCookies(c echo.Context, access AccessToken, refresh RefreshToken, secure bool) {
	SetAccessCookie(c, access, secure)
	setCookie(c, RefreshCookie, refresh.Raw, refresh.Exp, secure)
}

// SetAccessCookie replaces only the access cookie, as done after a silent
// refresh.
func SetAccessCookie(c echo.Context, access AccessToken, secure bool) {
	setCookie(c, AccessCookie, access.Token, access.Exp, secure)
}

// ClearSessionCookies expires both cookies.
func ClearSessionCookies(c echo.Context, secure bool) {
	for _, name := range []string{AccessCookie, RefreshCookie} {
		c.SetCookie(&http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func setCookie(c echo.Context, name, value string, exp time.Time, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  exp,
		MaxAge:   maxAgeFrom(exp),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func maxAgeFrom(exp time.Time) int {
	sec := int(time.Until(exp).Seconds())
	if sec < 0 {
		return 0
	}
	return sec
}

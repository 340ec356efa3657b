package middleware

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/moviebook/internal/model"
	"github.com/iliyamo/moviebook/internal/utils"
)

// RefreshStore resolves a hashed refresh token to its user id.
type RefreshStore interface {
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
}

// UserLookup loads a user by id.
type UserLookup interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// Session authenticates browser requests from the access cookie, silently
// renewing it from the refresh cookie when it is missing or expired.
type Session struct {
	Secret    string
	AccessTTL time.Duration
	Secure    bool
	Tokens    RefreshStore
	Users     UserLookup
	Log       logrus.FieldLogger
}

// Authenticate resolves the caller of c.  On success the user is stored in
// the context.
func (s *Session) Authenticate(c echo.Context) (model.User, bool) {
	if ck, err := c.Cookie(utils.AccessCookie); err == nil && ck.Value != "" {
		if u, err := utils.ParseAccessToken(s.Secret, ck.Value); err == nil {
			SetUser(c, u)
			return u, true
		}
	}
	u, ok := s.refresh(c)
	if ok {
		SetUser(c, u)
	}
	return u, ok
}

func (s *Session) refresh(c echo.Context) (model.User, bool) {
	ck, err := c.Cookie(utils.RefreshCookie)
	if err != nil || ck.Value == "" || s.Tokens == nil || s.Users == nil {
		return model.User{}, false
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	uid, err := s.Tokens.ValidateRefresh(ctx, utils.HashRefreshRaw(ck.Value))
	if err != nil {
		return model.User{}, false
	}
	u, err := s.Users.GetByID(ctx, uid)
	if err != nil {
		if s.Log != nil {
			s.Log.WithError(err).WithField("user_id", uid).Warn("refresh: load user")
		}
		return model.User{}, false
	}
	access, err := utils.NewAccessToken(s.Secret, u, s.AccessTTL)
	if err != nil {
		return model.User{}, false
	}
	utils.SetAccessCookie(c, access, s.Secure)
	return u, true
}

// Optional attaches the user when a session exists and never blocks.
func (s *Session) Optional() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s.Authenticate(c)
			return next(c)
		}
	}
}

// Require lets authenticated requests through and redirects everyone else to
// the login page, remembering where they were going.
func (s *Session) Require() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := s.Authenticate(c); ok {
				return next(c)
			}
			return c.Redirect(http.StatusSeeOther, LoginURL(c.Request().URL.RequestURI()))
		}
	}
}

// LoginURL is the login page with next set to target.
func LoginURL(target string) string {
	return "/login?next=" + url.QueryEscape(target)
}

// SafeNext returns target when it is a local absolute path and fallback
// otherwise, so a crafted next parameter cannot redirect off-site.
func SafeNext(target, fallback string) string {
	if target == "" || target[0] != '/' || len(target) > 1 && (target[1] == '/' || target[1] == '\\') {
		return fallback
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return target
}

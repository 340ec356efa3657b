package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/moviebook/internal/config"
	"github.com/iliyamo/moviebook/internal/middleware"
	"github.com/iliyamo/moviebook/internal/model"
	"github.com/iliyamo/moviebook/internal/repository"
	"github.com/iliyamo/moviebook/internal/utils"
)

const (
	msgRegisterInvalid = "Please enter your name, a valid email and a password of at least 6 characters."
	msgEmailExists     = "Email already registered! Try logging in."
	msgRegistered      = "Account created! Please log in to start booking."
	msgBadLogin        = "Invalid email or password. Please try again."
	msgLoggedOut       = "You have been logged out. See you next time!"
)

// AuthHandler bundles dependencies for the registration, login and logout
// pages.
type AuthHandler struct {
	Cfg      config.Config
	Users    *repository.UserRepo
	Tokens   *repository.TokenRepo
	Log      logrus.FieldLogger
	validate *validator.Validate
}

func NewAuthHandler(cfg config.Config, u *repository.UserRepo, t *repository.TokenRepo, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Log: log.WithField("component", "auth"), validate: validator.New()}
}

type registerForm struct {
	Name     string `form:"name" validate:"required,max=120"`
	Email    string `form:"email" validate:"required,email,max=120"`
	Password string `form:"password" validate:"required,min=6,max=72"`
}

type loginForm struct {
	Email    string `form:"email"`
	Password string `form:"password"`
	Next     string `form:"next"`
}

// RegisterForm renders the empty registration page.
func (h *AuthHandler) RegisterForm(c echo.Context) error {
	return c.Render(http.StatusOK, "register", newPage(c, "Register", messageFromQuery(c), registerForm{}))
}

// Register creates an account and sends the user to the login page.
func (h *AuthHandler) Register(c echo.Context) error {
	var f registerForm
	_ = c.Bind(&f)
	f.Name = strings.TrimSpace(f.Name)
	f.Email = repository.NormalizeEmail(f.Email)

	again := func(status int, msg model.Message) error {
		f.Password = ""
		return c.Render(status, "register", newPage(c, "Register", msg, f))
	}
	if err := h.validate.Struct(f); err != nil {
		return again(http.StatusUnprocessableEntity, model.Message{Kind: model.KindWarning, Text: msgRegisterInvalid})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	uid, err := h.Users.Create(ctx, f.Name, f.Email, f.Password, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return again(http.StatusConflict, model.Message{Kind: model.KindDanger, Text: msgEmailExists})
		}
		h.Log.WithError(err).Error("create user")
		return again(http.StatusInternalServerError, model.Message{Kind: model.KindDanger, Text: msgServerError})
	}
	h.Log.WithField("user_id", uid).Info("user registered")
	return c.Redirect(http.StatusSeeOther, withMessage("/login", model.Message{Kind: model.KindSuccess, Text: msgRegistered}))
}

// LoginForm renders the login page, keeping the next target.
func (h *AuthHandler) LoginForm(c echo.Context) error {
	if _, ok := middleware.CurrentUser(c); ok {
		return c.Redirect(http.StatusSeeOther, middleware.SafeNext(c.QueryParam("next"), "/dashboard"))
	}
	return c.Render(http.StatusOK, "login", newPage(c, "Log in", messageFromQuery(c), loginForm{Next: c.QueryParam("next")}))
}

// Login checks the credentials, starts a session and redirects.
func (h *AuthHandler) Login(c echo.Context) error {
	var f loginForm
	_ = c.Bind(&f)
	f.Email = repository.NormalizeEmail(f.Email)

	fail := func() error {
		f.Password = ""
		return c.Render(http.StatusUnauthorized, "login",
			newPage(c, "Log in", model.Message{Kind: model.KindDanger, Text: msgBadLogin}, f))
	}
	if f.Email == "" || f.Password == "" {
		return fail()
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, f.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail()
		}
		h.Log.WithError(err).Error("load user")
		return serverError(c, "Log in")
	}
	if !utils.VerifyPassword(u.PasswordHash, f.Password) {
		return fail()
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u, h.Cfg.AccessTTL)
	if err != nil {
		return serverError(c, "Log in")
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTL)
	if err != nil {
		return serverError(c, "Log in")
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		h.Log.WithError(err).Error("store refresh token")
		return serverError(c, "Log in")
	}
	utils.SetSessionCookies(c, access, refresh, h.Cfg.CookieSecure)
	h.Log.WithField("user_id", u.ID).Info("user logged in")
	return c.Redirect(http.StatusSeeOther, middleware.SafeNext(f.Next, "/dashboard"))
}

// Logout revokes the refresh token, clears the cookies and goes home.
func (h *AuthHandler) Logout(c echo.Context) error {
	if ck, err := c.Cookie(utils.RefreshCookie); err == nil && ck.Value != "" {
		ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
		defer cancel()
		if err := h.Tokens.RevokeByHash(ctx, utils.HashRefreshRaw(ck.Value)); err != nil {
			h.Log.WithError(err).Warn("revoke refresh token")
		}
	}
	utils.ClearSessionCookies(c, h.Cfg.CookieSecure)
	return c.Redirect(http.StatusSeeOther, withMessage("/", model.Message{Kind: model.KindInfo, Text: msgLoggedOut}))
}

// Package router wires handlers and middleware onto the echo instance.
package router

import (
	"database/sql"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/moviebook/internal/handler"
	"github.com/iliyamo/moviebook/internal/middleware"
	"github.com/iliyamo/moviebook/internal/web"
)

// Handlers groups everything the routes dispatch to.
type Handlers struct {
	Pages     *handler.PageHandler
	Movies    *handler.MovieHandler
	Auth      *handler.AuthHandler
	Dashboard *handler.DashboardHandler
	API       *handler.APIHandler
	DB        *sql.DB
}

// Middleware groups the edge middleware; nil entries are skipped.
type Middleware struct {
	Session   *middleware.Session
	RateLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
}

// Register maps every route.  Pages run with an optional session so the
// navigation knows who is logged in; booking and dashboard routes require
// one.
func Register(e *echo.Echo, h Handlers, m Middleware) {
	e.GET("/healthz", handler.Health(h.DB))
	e.GET("/static/*", echo.WrapHandler(http.StripPrefix("/static/", http.FileServer(http.FS(web.Static())))))

	limit := optional(m.RateLimit)
	cache := optional(m.Cache)

	opt := m.Session.Optional()
	e.GET("/", h.Pages.Index, opt)
	e.GET("/about", h.Pages.About, opt)
	e.GET("/booking_cancelled", h.Pages.BookingCancelled, opt)
	e.GET("/register", h.Auth.RegisterForm, opt)
	e.POST("/register", h.Auth.Register, limit, opt)
	e.GET("/login", h.Auth.LoginForm, opt)
	e.POST("/login", h.Auth.Login, limit, opt)
	e.GET("/logout", h.Auth.Logout, opt)

	req := m.Session.Require()
	e.GET("/movie/:id", h.Movies.Show, req)
	e.POST("/movie/:id", h.Movies.Book, req)
	e.GET("/dashboard", h.Dashboard.Dashboard, req)
	e.POST("/cancel/:id", h.Dashboard.Cancel, req)

	api := e.Group("/api", limit, cache)
	api.GET("/movies/recent", h.API.Recent)
	api.GET("/movies/:id", h.API.Movie)
	api.GET("/search", h.API.Search)
}

func optional(mw echo.MiddlewareFunc) echo.MiddlewareFunc {
	if mw == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return mw
}

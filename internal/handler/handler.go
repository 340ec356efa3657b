package handler

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/moviebook/internal/middleware"
	"github.com/iliyamo/moviebook/internal/model"
	"github.com/iliyamo/moviebook/internal/tmdb"
	"github.com/iliyamo/moviebook/internal/web"
)

// requestLog tags log with the request id.
func requestLog(c echo.Context, log logrus.FieldLogger) logrus.FieldLogger {
	return log.WithField("request_id", middleware.GetRequestID(c))
}

// dbTimeout bounds every store call made while serving a request.
const dbTimeout = 5 * time.Second

// Showtimes offered on the booking form.
var Showtimes = []string{"12:00 PM", "3:00 PM", "6:00 PM", "9:00 PM"}

// Catalog is the movie lookup surface the handlers use; *catalog.Service
// satisfies it.
type Catalog interface {
	RecentReleases(ctx context.Context) []tmdb.Movie
	MovieDetails(ctx context.Context, id int64) (tmdb.Movie, bool)
	Search(ctx context.Context, query string) []tmdb.Movie
	BookingDates() []string
}

const msgServerError = "Something went wrong on our side. Please try again."

// newPage builds the template data for c with the session user filled in.
func newPage(c echo.Context, title string, msg model.Message, data any) web.Page {
	p := web.Page{Title: title, Message: msg, Data: data}
	if u, ok := middleware.CurrentUser(c); ok {
		p.User = &u
	}
	return p
}

// messageFromQuery reads a message carried across a redirect.  Unknown kinds
// are shown as info.
func messageFromQuery(c echo.Context) model.Message {
	text := c.QueryParam("message")
	if text == "" {
		return model.Message{}
	}
	kind := c.QueryParam("message_type")
	switch kind {
	case model.KindSuccess, model.KindInfo, model.KindWarning, model.KindError, model.KindDanger:
	default:
		kind = model.KindInfo
	}
	return model.Message{Kind: kind, Text: text}
}

// withMessage appends a message to a local redirect target.
func withMessage(target string, msg model.Message) string {
	q := url.Values{"message": {msg.Text}, "message_type": {msg.Kind}}
	return target + "?" + q.Encode()
}

func serverError(c echo.Context, title string) error {
	return c.Render(http.StatusInternalServerError, "error",
		newPage(c, title, model.Message{Kind: model.KindDanger, Text: msgServerError}, errorView{Status: http.StatusInternalServerError}))
}

type errorView struct {
	Status int
}

// ErrorHandler renders echo errors as JSON under /api and as the error page
// everywhere else.
func ErrorHandler(e *echo.Echo, log logrus.FieldLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		text := http.StatusText(code)
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if s, ok := he.Message.(string); ok {
				text = s
			} else {
				text = http.StatusText(code)
			}
		}
		if code >= http.StatusInternalServerError {
			requestLog(c, log).WithError(err).WithField("path", c.Request().URL.Path).Error("request failed")
		}
		if isAPI(c) {
			_ = c.JSON(code, echo.Map{"error": text})
			return
		}
		msg := model.Message{Kind: model.KindDanger, Text: text}
		if rerr := c.Render(code, "error", newPage(c, http.StatusText(code), msg, errorView{Status: code})); rerr != nil {
			e.DefaultHTTPErrorHandler(err, c)
		}
	}
}

func isAPI(c echo.Context) bool {
	p := c.Request().URL.Path
	return p == "/api" || len(p) > 4 && p[:5] == "/api/"
}

package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/moviebook/internal/booking"
	"github.com/iliyamo/moviebook/internal/catalog"
	"github.com/iliyamo/moviebook/internal/middleware"
	"github.com/iliyamo/moviebook/internal/model"
)

// DashboardHandler lists and cancels the current user's bookings.
type DashboardHandler struct {
	Catalog  Catalog
	Bookings *booking.Service
	Log      logrus.FieldLogger
}

func NewDashboardHandler(c Catalog, b *booking.Service, log logrus.FieldLogger) *DashboardHandler {
	return &DashboardHandler{Catalog: c, Bookings: b, Log: log.WithField("component", "dashboard")}
}

type bookingRow struct {
	model.Booking
	PosterURL string
}

type dashboardView struct {
	Bookings []bookingRow
}

// Dashboard renders the user's bookings, newest first, with posters.
func (h *DashboardHandler) Dashboard(c echo.Context) error {
	user, _ := middleware.CurrentUser(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	list, err := h.Bookings.ListForUser(ctx, user)
	if err != nil {
		requestLog(c, h.Log).WithError(err).WithField("user_id", user.ID).Error("list bookings")
		return serverError(c, "My bookings")
	}
	rows := make([]bookingRow, 0, len(list))
	posters := h.posters(c.Request().Context(), list)
	for _, b := range list {
		rows = append(rows, bookingRow{Booking: b, PosterURL: posters[b.MovieID]})
	}
	return c.Render(http.StatusOK, "dashboard", newPage(c, "My bookings", messageFromQuery(c), dashboardView{Bookings: rows}))
}

// posters resolves one poster URL per distinct movie.  Lookups go through
// the catalog so cached details are used when TMDB is down.
func (h *DashboardHandler) posters(ctx context.Context, list []model.Booking) map[int64]string {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	out := make(map[int64]string, len(list))
	for _, b := range list {
		if _, done := out[b.MovieID]; done {
			continue
		}
		path := ""
		if m, ok := h.Catalog.MovieDetails(ctx, b.MovieID); ok {
			path = m.PosterPath
		}
		out[b.MovieID] = catalog.PosterURL(path, "w200")
	}
	return out
}

// Cancel removes one of the user's bookings.  Cancelling a booking that is
// not the user's changes nothing and returns to the dashboard.
func (h *DashboardHandler) Cancel(c echo.Context) error {
	user, _ := middleware.CurrentUser(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.Redirect(http.StatusSeeOther, "/dashboard")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	ok, err := h.Bookings.Cancel(ctx, user, id)
	if err != nil {
		requestLog(c, h.Log).WithError(err).WithField("booking_id", id).Error("cancel booking")
		return serverError(c, "My bookings")
	}
	if !ok {
		return c.Redirect(http.StatusSeeOther, "/dashboard")
	}
	return c.Render(http.StatusOK, "booking_cancelled", newPage(c, "Booking cancelled", cancelledMessage(), nil))
}

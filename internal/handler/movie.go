package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/moviebook/internal/booking"
	"github.com/iliyamo/moviebook/internal/middleware"
	"github.com/iliyamo/moviebook/internal/model"
	"github.com/iliyamo/moviebook/internal/tmdb"
)

const msgMovieUnavailable = "Movie details unavailable right now. Please try again later."

// MovieHandler serves the movie detail page and its booking form.
type MovieHandler struct {
	Catalog  Catalog
	Bookings *booking.Service
	Log      logrus.FieldLogger
}

func NewMovieHandler(c Catalog, b *booking.Service, log logrus.FieldLogger) *MovieHandler {
	return &MovieHandler{Catalog: c, Bookings: b, Log: log.WithField("component", "movie")}
}

type bookingForm struct {
	MovieTitle string `form:"movie_title"`
	Seats      string `form:"seats"`
	Showtime   string `form:"showtime"`
	Date       string `form:"date"`
}

type movieView struct {
	Movie     *tmdb.Movie
	Booked    bool
	Form      bookingForm
	Dates     []string
	Showtimes []string
}

func movieID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusNotFound, "Movie not found")
	}
	return id, nil
}

// Show renders the movie page.
func (h *MovieHandler) Show(c echo.Context) error {
	id, err := movieID(c)
	if err != nil {
		return err
	}
	return h.render(c, id, bookingForm{}, false, model.Message{})
}

// Book handles the booking form.  The movie page is rendered again with the
// outcome message whatever happens.
func (h *MovieHandler) Book(c echo.Context) error {
	id, err := movieID(c)
	if err != nil {
		return err
	}
	user, _ := middleware.CurrentUser(c)

	var form bookingForm
	if err := c.Bind(&form); err != nil {
		form = bookingForm{}
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	res, err := h.Bookings.Book(ctx, user, booking.Request{
		MovieID:    id,
		MovieTitle: form.MovieTitle,
		Seats:      form.Seats,
		Showtime:   form.Showtime,
		Date:       form.Date,
	})
	if err != nil {
		requestLog(c, h.Log).WithError(err).WithField("movie_id", id).Error("book movie")
		return h.render(c, id, form, false, model.Message{Kind: model.KindDanger, Text: msgServerError})
	}
	if res.Outcome == booking.OutcomeBooked {
		form = bookingForm{}
	}
	return h.render(c, id, form, res.Outcome == booking.OutcomeBooked, res.Message)
}

func (h *MovieHandler) render(c echo.Context, id int64, form bookingForm, booked bool, msg model.Message) error {
	m, ok := h.Catalog.MovieDetails(c.Request().Context(), id)
	if !ok {
		msg = model.Message{Kind: model.KindError, Text: msgMovieUnavailable}
		return c.Render(http.StatusOK, "movie", newPage(c, "Movie unavailable", msg, movieView{}))
	}
	return c.Render(http.StatusOK, "movie", newPage(c, m.Title, msg, movieView{
		Movie:     &m,
		Booked:    booked,
		Form:      form,
		Dates:     h.Catalog.BookingDates(),
		Showtimes: Showtimes,
	}))
}

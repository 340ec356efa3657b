package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/moviebook/internal/booking"
	"github.com/iliyamo/moviebook/internal/catalog"
	"github.com/iliyamo/moviebook/internal/model"
	"github.com/iliyamo/moviebook/internal/tmdb"
)

// PageHandler serves the public pages.
type PageHandler struct {
	Catalog Catalog
}

func NewPageHandler(c Catalog) *PageHandler { return &PageHandler{Catalog: c} }

type indexView struct {
	Query   string
	Results []tmdb.Movie
	Movies  []tmdb.Movie
	Genres  []catalog.GenreGroup
}

// Index lists this week's releases grouped by genre and, with ?q=, search
// results above them.
func (h *PageHandler) Index(c echo.Context) error {
	ctx := c.Request().Context()
	v := indexView{Query: strings.TrimSpace(c.QueryParam("q"))}
	if v.Query != "" {
		v.Results = h.Catalog.Search(ctx, v.Query)
	}
	v.Movies = h.Catalog.RecentReleases(ctx)
	v.Genres = catalog.GroupByGenre(v.Movies)
	return c.Render(http.StatusOK, "index", newPage(c, "", messageFromQuery(c), v))
}

// About renders the static about page.
func (h *PageHandler) About(c echo.Context) error {
	return c.Render(http.StatusOK, "about", newPage(c, "About", model.Message{}, nil))
}

// BookingCancelled renders the cancellation confirmation.
func (h *PageHandler) BookingCancelled(c echo.Context) error {
	return c.Render(http.StatusOK, "booking_cancelled", newPage(c, "Booking cancelled", cancelledMessage(), nil))
}

func cancelledMessage() model.Message {
	return model.Message{Kind: model.KindError, Text: booking.MsgCancelled}
}

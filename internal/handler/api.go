package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/moviebook/internal/catalog"
	"github.com/iliyamo/moviebook/internal/tmdb"
)

// APIHandler exposes the catalog as JSON.
type APIHandler struct {
	Catalog Catalog
}

func NewAPIHandler(c Catalog) *APIHandler { return &APIHandler{Catalog: c} }

type recentResp struct {
	Movies []tmdb.Movie         `json:"movies"`
	Genres []catalog.GenreGroup `json:"genres"`
}

type searchResp struct {
	Query   string       `json:"query"`
	Results []tmdb.Movie `json:"results"`
}

// Recent returns this week's releases and their genre groups.
func (h *APIHandler) Recent(c echo.Context) error {
	movies := h.Catalog.RecentReleases(c.Request().Context())
	return c.JSON(http.StatusOK, recentResp{Movies: movies, Genres: catalog.GroupByGenre(movies)})
}

// Movie returns one movie, or 404 when neither TMDB nor the snapshot has it.
func (h *APIHandler) Movie(c echo.Context) error {
	id, err := movieID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid movie id"})
	}
	m, ok := h.Catalog.MovieDetails(c.Request().Context(), id)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "movie not available"})
	}
	return c.JSON(http.StatusOK, m)
}

// Search runs a title search.  A missing query is a 400.
func (h *APIHandler) Search(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "q is required"})
	}
	return c.JSON(http.StatusOK, searchResp{Query: q, Results: h.Catalog.Search(c.Request().Context(), q)})
}

package tmdb

// Genre is the {id, name} pair returned by the detail endpoint.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Movie is the subset of the TMDB movie object this application reads.  List
// endpoints fill GenreIDs; the detail endpoint fills Genres, Runtime and
// Tagline instead.
type Movie struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Overview     string  `json:"overview,omitempty"`
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path,omitempty"`
	ReleaseDate  string  `json:"release_date,omitempty"`
	VoteAverage  float64 `json:"vote_average,omitempty"`
	GenreIDs     []int   `json:"genre_ids,omitempty"`
	Genres       []Genre `json:"genres,omitempty"`
	Runtime      int     `json:"runtime,omitempty"`
	Tagline      string  `json:"tagline,omitempty"`
}

// Complete reports whether the record can be shown in a listing: it needs
// an id, a title and a poster.
func (m Movie) Complete() bool {
	return m.ID != 0 && m.Title != "" && m.PosterPath != ""
}

// GenreIDList returns the genre ids of m from whichever field is populated.
func (m Movie) GenreIDList() []int {
	if len(m.GenreIDs) > 0 || len(m.Genres) == 0 {
		return m.GenreIDs
	}
	ids := make([]int, 0, len(m.Genres))
	for _, g := range m.Genres {
		ids = append(ids, g.ID)
	}
	return ids
}

// listResponse is the envelope of discover, trending and search.  Results is
// a pointer so that a body without a results array can be told apart from an
// empty page.
type listResponse struct {
	Page    int      `json:"page"`
	Results *[]Movie `json:"results"`
}

package catalog

import "github.com/iliyamo/moviebook/internal/tmdb"

// OtherGenre labels genre ids outside the fixed map.
const OtherGenre = "Other"

var genreNames = map[int]string{
	28:    "Action",
	35:    "Comedy",
	18:    "Drama",
	27:    "Horror",
	10749: "Romance",
	878:   "Sci-Fi",
	16:    "Animation",
	53:    "Thriller",
	12:    "Adventure",
}

// GenreName returns the display name of a TMDB genre id.
func GenreName(id int) string {
	if name, ok := genreNames[id]; ok {
		return name
	}
	return OtherGenre
}

// GenreGroup is a named bucket of movies.
type GenreGroup struct {
	Name   string       `json:"name"`
	Movies []tmdb.Movie `json:"movies"`
}

// GroupByGenre buckets movies by display genre.  A movie appears once per
// genre id it carries, so two unmapped ids put it in Other twice.  Groups
// keep the order in which their name was first seen.
func GroupByGenre(movies []tmdb.Movie) []GenreGroup {
	groups := []GenreGroup{}
	index := map[string]int{}
	for _, m := range movies {
		for _, id := range m.GenreIDList() {
			name := GenreName(id)
			i, ok := index[name]
			if !ok {
				i = len(groups)
				index[name] = i
				groups = append(groups, GenreGroup{Name: name})
			}
			groups[i].Movies = append(groups[i].Movies, m)
		}
	}
	return groups
}

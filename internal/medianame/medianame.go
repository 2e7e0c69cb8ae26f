// Package medianame derives media metadata from library paths.
//
// The library layout is a fixed convention: movies live at
// "Movies/<Title> (<Year>)" and TV seasons at "TV Shows/<Show>/Season <N>",
// both relative to a library root. Parsing is case- and whitespace-tolerant
// but never guesses a missing year or season number.
package medianame

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
)

// Kind is the media kind derived from a path.
type Kind string

const (
	KindMovie    Kind = "movie"
	KindTVSeason Kind = "tv_season"
)

// MoviesDir and TVDir are the canonical section directory names under a
// library root. Parsing accepts case variants, but the scanner and watcher
// walk these exact names.
const (
	MoviesDir = "Movies"
	TVDir     = "TV Shows"
)

// ErrUnrecognized indicates a path that doesn't match the library convention.
// Callers treat it as "skip this path", not as a failure.
var ErrUnrecognized = errors.New("path does not match library naming convention")

// Info is the metadata derived from a single library path.
type Info struct {
	Kind   Kind
	Title  string
	Year   *int // movies only
	Season *int // tv seasons only
}

// Parse derives media info from a path relative to a library root,
// e.g. "Movies/Interstellar (2014)" or "TV Shows/Severance/Season 2".
func Parse(rel string) (Info, error) {
	parts := splitClean(rel)

	switch {
	case len(parts) == 2 && normalize(parts[0]) == "movies":
		title, year, err := parseMovieDir(parts[1])
		if err != nil {
			return Info{}, err
		}
		return Info{Kind: KindMovie, Title: title, Year: &year}, nil

	case len(parts) == 3 && normalize(parts[0]) == "tv shows":
		season, ok := parseSeasonDir(parts[2])
		if !ok {
			return Info{}, fmt.Errorf("%w: %q is not a season directory", ErrUnrecognized, parts[2])
		}
		title := strings.TrimSpace(parts[1])
		if title == "" {
			return Info{}, fmt.Errorf("%w: empty show name", ErrUnrecognized)
		}
		return Info{Kind: KindTVSeason, Title: title, Season: &season}, nil
	}

	return Info{}, fmt.Errorf("%w: %q", ErrUnrecognized, rel)
}

// parseMovieDir splits a directory name like "Inception (2010)" into title and
// year. A name without a parseable trailing year is unrecognized: "(Extended
// Cut)" is not a year and we don't guess.
func parseMovieDir(name string) (string, int, error) {
	name = strings.TrimSpace(name)
	idx := strings.LastIndex(name, "(")
	if idx < 1 || !strings.HasSuffix(name, ")") {
		return "", 0, fmt.Errorf("%w: %q has no year suffix", ErrUnrecognized, name)
	}

	yearPart := strings.TrimSpace(name[idx+1 : len(name)-1])
	year, err := strconv.Atoi(yearPart)
	if err != nil || year < 1000 || year > 9999 {
		return "", 0, fmt.Errorf("%w: %q has no year suffix", ErrUnrecognized, name)
	}

	title := strings.TrimSpace(name[:idx])
	if title == "" {
		return "", 0, fmt.Errorf("%w: %q has no title", ErrUnrecognized, name)
	}
	return title, year, nil
}

// parseSeasonDir recognizes "Season 4", "season_4" and short forms like "S4".
func parseSeasonDir(name string) (int, bool) {
	lower := strings.ToLower(strings.TrimSpace(name))

	var numPart string
	switch {
	case strings.HasPrefix(lower, "season "), strings.HasPrefix(lower, "season_"):
		numPart = lower[len("season "):]
	case strings.HasPrefix(lower, "s") && len(lower) <= 4:
		numPart = lower[1:]
	default:
		return 0, false
	}

	n, err := strconv.Atoi(strings.TrimSpace(numPart))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func splitClean(rel string) []string {
	rel = path.Clean(strings.ReplaceAll(rel, "\\", "/"))
	if rel == "." || rel == "/" {
		return nil
	}
	return strings.Split(strings.Trim(rel, "/"), "/")
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

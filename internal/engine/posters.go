package engine

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"github.com/jon4hz/sweepcrew/internal/database"
	"github.com/jon4hz/sweepcrew/internal/tmdb"
)

const posterBatchSize = 50

// fetchPosters looks up artwork for live items that don't have any yet.
func (e *Engine) fetchPosters(ctx context.Context) error {
	if e.tmdb == nil {
		return nil
	}

	items, err := e.db.ListMediaNeedingPoster(ctx, posterBatchSize)
	if err != nil {
		return err
	}

	for _, item := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var posterPath string
		switch item.Kind {
		case database.MediaKindMovie:
			posterPath, err = e.tmdb.MoviePosterPath(ctx, item.Title, item.Year)
		case database.MediaKindTVSeason:
			posterPath, err = e.tmdb.TVPosterPath(ctx, item.Title)
		default:
			continue
		}
		if err != nil {
			if errors.Is(err, tmdb.ErrNoPoster) {
				continue
			}
			log.Warn("Poster lookup failed", "media", item.ID, "title", item.Title, "error", err)
			continue
		}

		local, err := e.tmdb.DownloadPoster(ctx, posterPath)
		if err != nil {
			log.Warn("Poster download failed", "media", item.ID, "error", err)
			continue
		}
		if err := e.db.SetPosterPath(ctx, item.ID, local); err != nil {
			return err
		}
	}
	return nil
}

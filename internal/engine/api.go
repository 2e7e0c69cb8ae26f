package engine

import (
	"context"
	"time"

	"github.com/ccoveille/go-safecast"
	"github.com/dustin/go-humanize"
	"github.com/jon4hz/sweepcrew/internal/database"
	"github.com/mergestat/timediff"
	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v3/disk"
)

// MediaView is the API representation of a media item.
type MediaView struct {
	ID        uint   `json:"id"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Year      *int   `json:"year,omitempty"`
	Season    *int   `json:"season,omitempty"`
	Path      string `json:"path"`
	Status    string `json:"status"`
	SizeBytes int64  `json:"sizeBytes"`
	Size      string `json:"size"`

	MarkCount     int64 `json:"markCount"`
	EligibleCount int64 `json:"eligibleCount"`
	Marked        bool  `json:"marked"`
	Persistent    bool  `json:"persistent"`

	TrashedAt  *time.Time `json:"trashedAt,omitempty"`
	TrashedAgo string     `json:"trashedAgo,omitempty"`
	ReapAt     *time.Time `json:"reapAt,omitempty"`
	PosterPath string     `json:"posterPath,omitempty"`
}

// ListMedia returns the media views for the given filter, annotated with the
// requesting user's mark state.
func (e *Engine) ListMedia(ctx context.Context, filter database.MediaFilter, userID uint) ([]MediaView, error) {
	items, err := e.db.ListMedia(ctx, filter)
	if err != nil {
		return nil, err
	}

	ids := lo.Map(items, func(m database.Media, _ int) uint { return m.ID })
	markCounts, err := e.db.MarkCounts(ctx, ids)
	if err != nil {
		return nil, err
	}
	userMarked, err := e.db.UserMarkedMediaIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	markedSet := lo.SliceToMap(userMarked, func(id uint) (uint, struct{}) { return id, struct{}{} })

	eligible, err := e.db.CountUsers(ctx, e.policy.ExcludeAdmins())
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	views := make([]MediaView, 0, len(items))
	for _, item := range items {
		view := MediaView{
			ID:            item.ID,
			Kind:          string(item.Kind),
			Title:         item.Title,
			Year:          item.Year,
			Season:        item.Season,
			Path:          item.Path,
			Status:        string(item.Status),
			SizeBytes:     item.SizeBytes,
			Size:          humanize.IBytes(safeUint64(item.SizeBytes)),
			MarkCount:     markCounts[item.ID],
			EligibleCount: eligible,
			Persistent:    item.PersistentRecord != nil,
		}
		if _, ok := markedSet[item.ID]; ok {
			view.Marked = true
		}
		if item.TrashedAt != nil {
			view.TrashedAt = item.TrashedAt
			view.TrashedAgo = timediff.TimeDiff(*item.TrashedAt, timediff.WithStartTime(now))
			reapAt := item.TrashedAt.Add(e.cfg.Retention())
			view.ReapAt = &reapAt
		}
		if item.PosterPath != nil {
			view.PosterPath = *item.PosterPath
		}
		views = append(views, view)
	}
	return views, nil
}

// StatusStats aggregates one lifecycle status.
type StatusStats struct {
	Count     int64  `json:"count"`
	SizeBytes int64  `json:"sizeBytes"`
	Size      string `json:"size"`
}

// DiskStats reports the capacity of one library volume.
type DiskStats struct {
	Root        string  `json:"root"`
	TotalBytes  uint64  `json:"totalBytes"`
	FreeBytes   uint64  `json:"freeBytes"`
	UsedPercent float64 `json:"usedPercent"`
}

// Stats is the admin dashboard payload.
type Stats struct {
	ByStatus map[string]StatusStats `json:"byStatus"`
	Disks    []DiskStats            `json:"disks"`
}

// GetStats aggregates media counts, sizes and disk usage per library root.
func (e *Engine) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByStatus: make(map[string]StatusStats)}

	for _, status := range []database.MediaStatus{
		database.MediaStatusActive,
		database.MediaStatusTrashed,
		database.MediaStatusPermanent,
		database.MediaStatusGone,
	} {
		count, err := e.db.CountMediaByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		size, err := e.db.TotalSizeByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		stats.ByStatus[string(status)] = StatusStats{
			Count:     count,
			SizeBytes: size,
			Size:      humanize.IBytes(safeUint64(size)),
		}
	}

	for _, root := range e.cfg.Libraries {
		usage, err := disk.UsageWithContext(ctx, root)
		if err != nil {
			continue
		}
		stats.Disks = append(stats.Disks, DiskStats{
			Root:        root,
			TotalBytes:  usage.Total,
			FreeBytes:   usage.Free,
			UsedPercent: usage.UsedPercent,
		})
	}

	return stats, nil
}

func safeUint64(v int64) uint64 {
	u, err := safecast.ToUint64(v)
	if err != nil {
		return 0
	}
	return u
}

package service

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/sujalbistaa/confessly/internal/metrics"
	"github.com/sujalbistaa/confessly/internal/ranking"
	"github.com/sujalbistaa/confessly/internal/store"
	"github.com/sujalbistaa/confessly/internal/validate"
	"github.com/sujalbistaa/confessly/internal/ws"
)

// AdminStore is the storage the dashboard needs.
type AdminStore interface {
	CountConfessions(ctx context.Context, f store.ConfessionCount) (int64, error)
	CountLikes(ctx context.Context, confessionID string) (int64, error)
	CountComments(ctx context.Context, confessionID string) (int64, error)
	DeleteConfession(ctx context.Context, id string) error
}

// Stats are the dashboard's aggregate numbers.
type Stats struct {
	Total         int64 `json:"total"`
	WithIP        int64 `json:"withIp"`
	IPCoverage    int   `json:"ipCoverage"` // percent, rounded
	Last24Hours   int64 `json:"last24Hours"`
	Last7Days     int64 `json:"last7Days"`
	TotalLikes    int64 `json:"totalLikes"`
	TotalComments int64 `json:"totalComments"`
}

// SortOrder selects the admin list ordering.
type SortOrder string

const (
	SortRecent     SortOrder = "recent"
	SortEngagement SortOrder = "engagement"
	SortLikes      SortOrder = "likes"
	SortComments   SortOrder = "comments"
)

// ParseSortOrder maps a query value to a SortOrder. Empty means recent.
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(s) {
	case "", SortRecent:
		return SortRecent, nil
	case SortEngagement, SortLikes, SortComments:
		return SortOrder(s), nil
	}
	return "", validate.New("sort", "sort must be one of recent, engagement, likes, comments")
}

// AdminConfession is a ranked confession with its recorded client address.
type AdminConfession struct {
	ranking.Ranked
	IPAddress *string `json:"ipAddress,omitempty"`
}

// Admin backs the moderation dashboard. Callers must have checked the
// admin role.
type Admin struct {
	store   AdminStore
	board   *Board
	pub     Publisher
	metrics *metrics.Metrics
	log     *zap.Logger
	clock   Clock
}

func NewAdmin(st AdminStore, board *Board, pub Publisher, m *metrics.Metrics, log *zap.Logger, clock Clock) *Admin {
	return &Admin{store: st, board: board, pub: pub, metrics: m, log: log, clock: clock}
}

// Stats gathers the dashboard totals.
func (a *Admin) Stats(ctx context.Context) (Stats, error) {
	now := a.clock.now()
	var s Stats
	var err error

	if s.Total, err = a.store.CountConfessions(ctx, store.ConfessionCount{}); err != nil {
		return Stats{}, storageErr("count confessions", err)
	}
	if s.WithIP, err = a.store.CountConfessions(ctx, store.ConfessionCount{WithIP: true}); err != nil {
		return Stats{}, storageErr("count confessions with ip", err)
	}
	if s.Last24Hours, err = a.store.CountConfessions(ctx, store.ConfessionCount{Since: now.Add(-24 * time.Hour)}); err != nil {
		return Stats{}, storageErr("count recent confessions", err)
	}
	if s.Last7Days, err = a.store.CountConfessions(ctx, store.ConfessionCount{Since: now.AddDate(0, 0, -7)}); err != nil {
		return Stats{}, storageErr("count weekly confessions", err)
	}
	if s.TotalLikes, err = a.store.CountLikes(ctx, ""); err != nil {
		return Stats{}, storageErr("count likes", err)
	}
	if s.TotalComments, err = a.store.CountComments(ctx, ""); err != nil {
		return Stats{}, storageErr("count comments", err)
	}
	s.IPCoverage = Coverage(s.WithIP, s.Total)
	return s, nil
}

// Coverage is withIP as a rounded percentage of total, 0 when total is 0.
func Coverage(withIP, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(withIP) / float64(total) * 100))
}

// List returns confessions matching query in the requested order.
func (a *Admin) List(ctx context.Context, query string, order SortOrder) ([]AdminConfession, error) {
	entries, err := a.board.Entries(ctx)
	if err != nil {
		return nil, err
	}
	entries = ranking.FilterByContent(entries, query)

	var ranked []ranking.Ranked
	switch order {
	case SortEngagement:
		ranked = ranking.RankByEngagement(entries, a.clock.now(), 0)
	case SortLikes:
		ranked = ranking.RankByLikesOnly(entries)
	case SortComments:
		ranked = ranking.RankByCommentsOnly(entries)
	default:
		ranked = ranking.Recent(entries)
	}

	out := make([]AdminConfession, len(ranked))
	for i, r := range ranked {
		out[i] = AdminConfession{Ranked: r, IPAddress: r.IPAddress}
	}
	return out, nil
}

// Delete removes a confession with its likes and comments.
func (a *Admin) Delete(ctx context.Context, id string) error {
	if err := a.store.DeleteConfession(ctx, id); err != nil {
		return storageErr("delete confession", err)
	}
	a.metrics.ConfessionsDeleted.Inc()
	a.log.Info("confession deleted", zap.String("confession_id", id))
	a.pub.Publish(ws.Event{Table: ws.TableConfessions, Type: ws.Delete, ConfessionID: id})
	return nil
}

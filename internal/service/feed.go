package service

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sujalbistaa/confessly/internal/ranking"
	"github.com/sujalbistaa/confessly/internal/ws"
)

// EntryLister loads confessions with their aggregate counts, newest first.
type EntryLister interface {
	ListWithCounts(ctx context.Context, since time.Time) ([]ranking.Entry, error)
}

// Board caches the confession list with counts. Any change event on the
// watched tables invalidates it, and the next read reloads it.
//
// Each reload takes a sequence number. A reload that finishes after a later
// one has been applied is discarded, so a slow response never overwrites a
// newer list.
type Board struct {
	store EntryLister
	log   *zap.Logger

	mu        sync.Mutex
	entries   []ranking.Entry
	loaded    bool
	gen       uint64 // bumped by Invalidate
	loadedGen uint64
	seq       uint64
	applied   uint64
	subs      []*ws.Subscription
}

func NewBoard(st EntryLister, log *zap.Logger) *Board {
	return &Board{store: st, log: log}
}

// Watch invalidates the board on every change to confessions, likes or
// comments. Close releases the subscriptions.
func (b *Board) Watch(hub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, table := range []string{ws.TableConfessions, ws.TableLikes, ws.TableComments} {
		b.subs = append(b.subs, hub.Subscribe(ws.Filter{Table: table}, func(ws.Event) {
			b.Invalidate()
		}))
	}
}

// Close releases the board's subscriptions.
func (b *Board) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
}

// Invalidate marks the cached list stale.
func (b *Board) Invalidate() {
	b.mu.Lock()
	b.gen++
	b.mu.Unlock()
}

// Entries returns the current list, reloading it when stale. Callers must
// not modify the returned entries.
func (b *Board) Entries(ctx context.Context) ([]ranking.Entry, error) {
	b.mu.Lock()
	if b.loaded && b.loadedGen == b.gen {
		out := slices.Clone(b.entries)
		b.mu.Unlock()
		return out, nil
	}
	gen := b.gen
	b.seq++
	seq := b.seq
	b.mu.Unlock()

	entries, err := b.store.ListWithCounts(ctx, time.Time{})
	if err != nil {
		return nil, storageErr("load board", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if seq > b.applied {
		b.applied = seq
		b.entries = entries
		b.loaded = true
		b.loadedGen = gen
	} else {
		b.log.Debug("discarding out-of-order board reload",
			zap.Uint64("seq", seq), zap.Uint64("applied", b.applied))
	}
	return slices.Clone(b.entries), nil
}

// Feed serves the public confession lists.
type Feed struct {
	board        *Board
	trendingDays int
	clock        Clock
}

func NewFeed(board *Board, trendingDays int, clock Clock) *Feed {
	return &Feed{board: board, trendingDays: trendingDays, clock: clock}
}

// Recent lists confessions newest first.
func (f *Feed) Recent(ctx context.Context) ([]ranking.Ranked, error) {
	entries, err := f.board.Entries(ctx)
	if err != nil {
		return nil, err
	}
	return ranking.Recent(entries), nil
}

// Trending ranks confessions from the last days days by engagement. A
// non-positive days uses the configured window.
func (f *Feed) Trending(ctx context.Context, days int) ([]ranking.Ranked, error) {
	if days <= 0 {
		days = f.trendingDays
	}
	entries, err := f.board.Entries(ctx)
	if err != nil {
		return nil, err
	}
	return ranking.RankByEngagement(entries, f.clock.now(), days), nil
}

// MostLiked ranks every confession by likes.
func (f *Feed) MostLiked(ctx context.Context) ([]ranking.Ranked, error) {
	entries, err := f.board.Entries(ctx)
	if err != nil {
		return nil, err
	}
	return ranking.RankByLikesOnly(entries), nil
}

// MostCommented ranks commented confessions by comment count.
func (f *Feed) MostCommented(ctx context.Context) ([]ranking.Ranked, error) {
	entries, err := f.board.Entries(ctx)
	if err != nil {
		return nil, err
	}
	return ranking.RankByCommentsOnly(entries), nil
}

// PopularTags returns the most used hashtags.
func (f *Feed) PopularTags(ctx context.Context, limit int) ([]ranking.TagCount, error) {
	entries, err := f.board.Entries(ctx)
	if err != nil {
		return nil, err
	}
	return ranking.ExtractPopularTags(ranking.Contents(entries), limit), nil
}

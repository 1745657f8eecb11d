// Package ranking orders confessions by engagement and extracts popular
// hashtags. Every function is pure: callers supply the data and the clock.
//
// Malformed entries (nil confession, negative counts, or a zero creation
// time when a time window applies) are dropped from the output and the rest
// of the input is still ranked.
package ranking

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/sujalbistaa/confessly/internal/models"
)

// DefaultTagLimit is used when ExtractPopularTags is given a non-positive limit.
const DefaultTagLimit = 10

// Entry is a confession together with its aggregate counts.
type Entry struct {
	Confession   *models.Confession
	LikeCount    int
	CommentCount int
}

// Ranked is a display-ready confession with its derived score.
type Ranked struct {
	models.Confession
	Likes        int `json:"likes"`
	CommentCount int `json:"commentCount"`
	Score        int `json:"score"`
}

// TagCount is one hashtag and how many times it appeared.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

func (e Entry) valid() bool {
	return e.Confession != nil && e.LikeCount >= 0 && e.CommentCount >= 0
}

func (e Entry) ranked(score int) Ranked {
	return Ranked{
		Confession:   *e.Confession,
		Likes:        e.LikeCount,
		CommentCount: e.CommentCount,
		Score:        score,
	}
}

// EngagementScore weighs a like twice as much as a comment.
func EngagementScore(likes, comments int) int {
	return likes*2 + comments
}

// InWindow reports whether created lies in [now-windowDays, now].
func InWindow(created, now time.Time, windowDays int) bool {
	if created.IsZero() {
		return false
	}
	since := now.AddDate(0, 0, -windowDays)
	return !created.Before(since) && !created.After(now)
}

// RankByEngagement scores entries by likes*2 + comments and sorts them
// descending. Ties keep their input order. A windowDays <= 0 disables the
// time window.
func RankByEngagement(entries []Entry, now time.Time, windowDays int) []Ranked {
	out := make([]Ranked, 0, len(entries))
	for _, e := range entries {
		if !e.valid() {
			continue
		}
		if windowDays > 0 && !InWindow(e.Confession.CreatedAt, now, windowDays) {
			continue
		}
		out = append(out, e.ranked(EngagementScore(e.LikeCount, e.CommentCount)))
	}
	sortByScore(out)
	return out
}

// RankByLikesOnly sorts all entries by like count, descending, stable.
func RankByLikesOnly(entries []Entry) []Ranked {
	out := make([]Ranked, 0, len(entries))
	for _, e := range entries {
		if !e.valid() {
			continue
		}
		out = append(out, e.ranked(e.LikeCount))
	}
	sortByScore(out)
	return out
}

// RankByCommentsOnly omits entries without comments and sorts the rest by
// comment count, descending, stable.
func RankByCommentsOnly(entries []Entry) []Ranked {
	out := make([]Ranked, 0, len(entries))
	for _, e := range entries {
		if !e.valid() || e.CommentCount == 0 {
			continue
		}
		out = append(out, e.ranked(e.CommentCount))
	}
	sortByScore(out)
	return out
}

// Recent returns valid entries in input order with their engagement score
// attached. The input is expected newest first.
func Recent(entries []Entry) []Ranked {
	out := make([]Ranked, 0, len(entries))
	for _, e := range entries {
		if !e.valid() {
			continue
		}
		out = append(out, e.ranked(EngagementScore(e.LikeCount, e.CommentCount)))
	}
	return out
}

// FilterByContent keeps entries whose content contains query, ignoring
// case. An empty query keeps every valid entry.
func FilterByContent(entries []Entry, query string) []Entry {
	needle := strings.ToLower(strings.TrimSpace(query))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !e.valid() {
			continue
		}
		if needle == "" || strings.Contains(strings.ToLower(e.Confession.Content), needle) {
			out = append(out, e)
		}
	}
	return out
}

func sortByScore(rs []Ranked) {
	slices.SortStableFunc(rs, func(a, b Ranked) int {
		return cmp.Compare(b.Score, a.Score)
	})
}

var tagPattern = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)

// ExtractPopularTags counts #tags across contents, in order. Each
// occurrence counts. Ties are ordered by first appearance.
func ExtractPopularTags(contents []string, limit int) []TagCount {
	if limit <= 0 {
		limit = DefaultTagLimit
	}

	counts := make(map[string]int)
	var order []string
	for _, content := range contents {
		for _, m := range tagPattern.FindAllStringSubmatch(content, -1) {
			tag := m[1]
			if _, seen := counts[tag]; !seen {
				order = append(order, tag)
			}
			counts[tag]++
		}
	}

	out := make([]TagCount, 0, len(order))
	for _, tag := range order {
		out = append(out, TagCount{Tag: tag, Count: counts[tag]})
	}
	slices.SortStableFunc(out, func(a, b TagCount) int {
		return cmp.Compare(b.Count, a.Count)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Contents returns the content of every valid entry, in order.
func Contents(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.valid() {
			out = append(out, e.Confession.Content)
		}
	}
	return out
}

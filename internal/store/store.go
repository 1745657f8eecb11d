// Package store is the gorm-backed persistence layer for confessions,
// reactions, users and roles.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sujalbistaa/confessly/internal/models"
	"github.com/sujalbistaa/confessly/internal/ranking"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects an insert.
	ErrDuplicate = errors.New("duplicate record")
)

// Store wraps a gorm connection.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the connection for migrations and tests.
func (s *Store) DB() *gorm.DB { return s.db }

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}

// --- Confessions ---

func (s *Store) CreateConfession(ctx context.Context, c *models.Confession) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("create confession: %w", translate(err))
	}
	return nil
}

func (s *Store) GetConfession(ctx context.Context, id string) (*models.Confession, error) {
	var c models.Confession
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// ListConfessions returns every confession, newest first.
func (s *Store) ListConfessions(ctx context.Context) ([]models.Confession, error) {
	var out []models.Confession
	if err := s.db.WithContext(ctx).Order("created_at desc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list confessions: %w", err)
	}
	return out, nil
}

type entryRow struct {
	models.Confession
	LikeCount    int
	CommentCount int
}

const countsSelect = "confessions.*, " +
	"(SELECT COUNT(*) FROM confession_likes WHERE confession_likes.confession_id = confessions.id) AS like_count, " +
	"(SELECT COUNT(*) FROM confession_comments WHERE confession_comments.confession_id = confessions.id) AS comment_count"

// ListWithCounts returns confessions created at or after since (all when
// since is zero), newest first, each with its like and comment counts.
func (s *Store) ListWithCounts(ctx context.Context, since time.Time) ([]ranking.Entry, error) {
	q := s.db.WithContext(ctx).Model(&models.Confession{}).Select(countsSelect)
	if !since.IsZero() {
		q = q.Where("confessions.created_at >= ?", since)
	}

	var rows []entryRow
	if err := q.Order("confessions.created_at desc").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("list confessions with counts: %w", err)
	}

	entries := make([]ranking.Entry, len(rows))
	for i := range rows {
		c := rows[i].Confession
		entries[i] = ranking.Entry{
			Confession:   &c,
			LikeCount:    rows[i].LikeCount,
			CommentCount: rows[i].CommentCount,
		}
	}
	return entries, nil
}

// DeleteConfession removes a confession and all of its likes and comments.
func (s *Store) DeleteConfession(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Confession
		if err := tx.Where("id = ?", id).First(&c).Error; err != nil {
			return translate(err)
		}
		if err := tx.Where("confession_id = ?", id).Delete(&models.Like{}).Error; err != nil {
			return fmt.Errorf("delete likes: %w", err)
		}
		if err := tx.Where("confession_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return fmt.Errorf("delete comments: %w", err)
		}
		if err := tx.Delete(&c).Error; err != nil {
			return fmt.Errorf("delete confession: %w", err)
		}
		return nil
	})
}

// ConfessionCount narrows CountConfessions.
type ConfessionCount struct {
	Since  time.Time // zero means no lower bound
	WithIP bool
}

func (s *Store) CountConfessions(ctx context.Context, f ConfessionCount) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Confession{})
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}
	if f.WithIP {
		q = q.Where("ip_address IS NOT NULL")
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count confessions: %w", err)
	}
	return n, nil
}

// --- Likes ---

// CountLikes counts likes on one confession, or on all when confessionID is empty.
func (s *Store) CountLikes(ctx context.Context, confessionID string) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Like{})
	if confessionID != "" {
		q = q.Where("confession_id = ?", confessionID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count likes: %w", err)
	}
	return n, nil
}

// FindLike returns the like left by ip on a confession, or nil.
func (s *Store) FindLike(ctx context.Context, confessionID, ip string) (*models.Like, error) {
	var likes []models.Like
	err := s.db.WithContext(ctx).
		Where("confession_id = ? AND ip_address = ?", confessionID, ip).
		Limit(1).
		Find(&likes).Error
	if err != nil {
		return nil, fmt.Errorf("find like: %w", err)
	}
	if len(likes) == 0 {
		return nil, nil
	}
	return &likes[0], nil
}

func (s *Store) InsertLike(ctx context.Context, l *models.Like) error {
	if err := s.db.WithContext(ctx).Create(l).Error; err != nil {
		return fmt.Errorf("insert like: %w", translate(err))
	}
	return nil
}

func (s *Store) DeleteLike(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Like{}).Error; err != nil {
		return fmt.Errorf("delete like: %w", err)
	}
	return nil
}

// --- Comments ---

// ListComments returns a confession's comments, newest first.
func (s *Store) ListComments(ctx context.Context, confessionID string) ([]models.Comment, error) {
	var out []models.Comment
	err := s.db.WithContext(ctx).
		Where("confession_id = ?", confessionID).
		Order("created_at desc").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return out, nil
}

func (s *Store) InsertComment(ctx context.Context, c *models.Comment) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("insert comment: %w", translate(err))
	}
	return nil
}

// CountComments counts comments on one confession, or on all when confessionID is empty.
func (s *Store) CountComments(ctx context.Context, confessionID string) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Comment{})
	if confessionID != "" {
		q = q.Where("confession_id = ?", confessionID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return n, nil
}

// --- Users and roles ---

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("create user: %w", translate(err))
	}
	return nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// HasRole reports whether the user holds role.
func (s *Store) HasRole(ctx context.Context, userID, role string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.UserRole{}).
		Where("user_id = ? AND role = ?", userID, role).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check role: %w", err)
	}
	return n > 0, nil
}

// GrantRole assigns role to the user. Granting an existing role is a no-op.
func (s *Store) GrantRole(ctx context.Context, userID, role string) error {
	err := s.db.WithContext(ctx).Create(&models.UserRole{UserID: userID, Role: role}).Error
	if err = translate(err); err != nil && !errors.Is(err, ErrDuplicate) {
		return fmt.Errorf("grant role: %w", err)
	}
	return nil
}

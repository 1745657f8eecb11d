package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sujalbistaa/confessly/internal/metrics"
	"github.com/sujalbistaa/confessly/internal/models"
	"github.com/sujalbistaa/confessly/internal/store"
	"github.com/sujalbistaa/confessly/internal/validate"
	"github.com/sujalbistaa/confessly/internal/ws"
)

// ReactionStore is the storage the like and comment operations need.
type ReactionStore interface {
	GetConfession(ctx context.Context, id string) (*models.Confession, error)
	CountLikes(ctx context.Context, confessionID string) (int64, error)
	FindLike(ctx context.Context, confessionID, ip string) (*models.Like, error)
	InsertLike(ctx context.Context, l *models.Like) error
	DeleteLike(ctx context.Context, id string) error
	ListComments(ctx context.Context, confessionID string) ([]models.Comment, error)
	InsertComment(ctx context.Context, c *models.Comment) error
	CountComments(ctx context.Context, confessionID string) (int64, error)
}

// LikeState is what a client sees for one confession.
type LikeState struct {
	Count int64 `json:"count"`
	Liked bool  `json:"liked"`
}

// Reactions handles likes and comments.
//
// The client identifier is a best-effort anti-spam key (usually the client
// IP). It is not an identity and not a security boundary.
type Reactions struct {
	store   ReactionStore
	pub     Publisher
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewReactions(st ReactionStore, pub Publisher, m *metrics.Metrics, log *zap.Logger) *Reactions {
	return &Reactions{store: st, pub: pub, metrics: m, log: log}
}

func (r *Reactions) ensureConfession(ctx context.Context, id string) error {
	if _, err := r.store.GetConfession(ctx, id); err != nil {
		return storageErr("load confession", err)
	}
	return nil
}

// LikeState returns the like count and whether clientID has liked.
func (r *Reactions) LikeState(ctx context.Context, confessionID, clientID string) (LikeState, error) {
	if err := r.ensureConfession(ctx, confessionID); err != nil {
		return LikeState{}, err
	}
	return r.likeState(ctx, confessionID, clientOrUnknown(clientID))
}

func (r *Reactions) likeState(ctx context.Context, confessionID, clientID string) (LikeState, error) {
	count, err := r.store.CountLikes(ctx, confessionID)
	if err != nil {
		return LikeState{}, storageErr("count likes", err)
	}
	like, err := r.store.FindLike(ctx, confessionID, clientID)
	if err != nil {
		return LikeState{}, storageErr("find like", err)
	}
	return LikeState{Count: count, Liked: like != nil}, nil
}

// ToggleLike removes clientID's like if present and adds one otherwise.
//
// The lookup and the write are separate statements. Two concurrent toggles
// from one client can both see "not liked"; the unique index on
// (confession_id, ip_address) rejects the second insert and that toggle
// reports the confession as liked.
func (r *Reactions) ToggleLike(ctx context.Context, confessionID, clientID string) (LikeState, error) {
	clientID = clientOrUnknown(clientID)
	if err := r.ensureConfession(ctx, confessionID); err != nil {
		return LikeState{}, err
	}

	existing, err := r.store.FindLike(ctx, confessionID, clientID)
	if err != nil {
		return LikeState{}, storageErr("find like", err)
	}

	if existing != nil {
		if err := r.store.DeleteLike(ctx, existing.ID); err != nil {
			return LikeState{}, storageErr("delete like", err)
		}
		r.metrics.LikeToggles.WithLabelValues("unlike").Inc()
		r.pub.Publish(ws.Event{Table: ws.TableLikes, Type: ws.Delete, ConfessionID: confessionID})
	} else {
		like := &models.Like{ConfessionID: confessionID, IPAddress: clientID}
		switch err := r.store.InsertLike(ctx, like); {
		case err == nil:
			r.metrics.LikeToggles.WithLabelValues("like").Inc()
			r.pub.Publish(ws.Event{Table: ws.TableLikes, Type: ws.Insert, ConfessionID: confessionID})
		case errors.Is(err, store.ErrDuplicate):
			r.log.Debug("concurrent like from same client", zap.String("confession_id", confessionID))
		default:
			return LikeState{}, storageErr("insert like", err)
		}
	}

	return r.likeState(ctx, confessionID, clientID)
}

// Comments returns a confession's comments, newest first.
func (r *Reactions) Comments(ctx context.Context, confessionID string) ([]models.Comment, error) {
	if err := r.ensureConfession(ctx, confessionID); err != nil {
		return nil, err
	}
	comments, err := r.store.ListComments(ctx, confessionID)
	if err != nil {
		return nil, storageErr("list comments", err)
	}
	return comments, nil
}

// CommentCount returns the number of comments on a confession.
func (r *Reactions) CommentCount(ctx context.Context, confessionID string) (int64, error) {
	n, err := r.store.CountComments(ctx, confessionID)
	if err != nil {
		return 0, storageErr("count comments", err)
	}
	return n, nil
}

// AddComment validates and stores a comment.
func (r *Reactions) AddComment(ctx context.Context, confessionID, raw string) (*models.Comment, error) {
	content, err := validate.Text(raw, MaxCommentLength)
	if err != nil {
		r.metrics.SubmissionsRejected.WithLabelValues("comment_" + reason(err)).Inc()
		if errors.Is(err, validate.ErrEmpty) {
			return nil, validate.New("content", "Comment cannot be empty")
		}
		return nil, validate.New("content", "Comment must be at most 500 characters")
	}
	if err := r.ensureConfession(ctx, confessionID); err != nil {
		return nil, err
	}

	c := &models.Comment{ConfessionID: confessionID, Content: content}
	if err := r.store.InsertComment(ctx, c); err != nil {
		r.log.Error("failed to store comment", zap.Error(err))
		return nil, storageErr("add comment", err)
	}

	r.metrics.CommentsAdded.Inc()
	r.pub.Publish(ws.Event{Table: ws.TableComments, Type: ws.Insert, ConfessionID: confessionID, Record: c})
	return c, nil
}

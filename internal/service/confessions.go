package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sujalbistaa/confessly/internal/metrics"
	"github.com/sujalbistaa/confessly/internal/models"
	"github.com/sujalbistaa/confessly/internal/validate"
	"github.com/sujalbistaa/confessly/internal/ws"
)

// ConfessionStore persists new confessions.
type ConfessionStore interface {
	CreateConfession(ctx context.Context, c *models.Confession) error
}

// Confessions accepts new confessions.
type Confessions struct {
	store   ConfessionStore
	pub     Publisher
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewConfessions(st ConfessionStore, pub Publisher, m *metrics.Metrics, log *zap.Logger) *Confessions {
	return &Confessions{store: st, pub: pub, metrics: m, log: log}
}

// Submit validates raw and stores the trimmed text. clientID is the weak
// per-client identifier recorded with the confession; it may be empty.
func (s *Confessions) Submit(ctx context.Context, raw, clientID string) (*models.Confession, error) {
	content, err := validate.Text(raw, MaxConfessionLength)
	if err != nil {
		s.metrics.SubmissionsRejected.WithLabelValues("confession_" + reason(err)).Inc()
		if errors.Is(err, validate.ErrEmpty) {
			return nil, validate.New("content", "Please write something before submitting")
		}
		return nil, validate.New("content", "Confession must be at most 1000 characters")
	}

	c := &models.Confession{Content: content}
	if clientID != "" {
		c.IPAddress = &clientID
	}
	if err := s.store.CreateConfession(ctx, c); err != nil {
		s.log.Error("failed to store confession", zap.Error(err))
		return nil, storageErr("submit confession", err)
	}

	s.metrics.ConfessionsSubmitted.Inc()
	s.pub.Publish(ws.Event{Table: ws.TableConfessions, Type: ws.Insert, ConfessionID: c.ID, Record: c})
	return c, nil
}

func reason(err error) string {
	if errors.Is(err, validate.ErrEmpty) {
		return "empty"
	}
	return "too_long"
}

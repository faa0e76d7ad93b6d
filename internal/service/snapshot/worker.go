// Package snapshot периодически публикует KPI-снимок датасета во внешний брокер.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/oda/internal/domain"
	"github.com/vladislavdragonenkov/oda/internal/metrics"
)

const (
	defaultInterval    = 5 * time.Minute
	defaultMaxAttempts = 3
	defaultRetryDelay  = 50 * time.Millisecond
	maxRetryDelay      = 10 * time.Second
)

// Source собирает снимок; реализуется dashboard.Service.
type Source interface {
	Summary(ctx context.Context) (domain.Snapshot, error)
}

// Worker публикует снимок по таймеру и по Trigger.
type Worker struct {
	source    Source
	publisher domain.SnapshotPublisher
	metrics   *metrics.DashboardMetrics
	logger    *log.Entry

	interval    time.Duration
	maxAttempts int
	retryDelay  time.Duration

	trigger chan struct{}
}

type Option func(*Worker)

func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithMetrics(m *metrics.DashboardMetrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithInterval задаёт период публикации; неположительное значение игнорируется.
func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithMaxAttempts задаёт число попыток на один снимок.
func WithMaxAttempts(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// WithRetryDelay задаёт первую паузу между попытками; дальше она удваивается до maxRetryDelay.
func WithRetryDelay(d time.Duration) Option {
	return func(w *Worker) { w.retryDelay = max(d, 0) }
}

func NewWorker(source Source, publisher domain.SnapshotPublisher, opts ...Option) *Worker {
	w := &Worker{
		source:      source,
		publisher:   publisher,
		logger:      log.WithField("component", "snapshot-worker"),
		interval:    defaultInterval,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
		trigger:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Trigger просит опубликовать снимок вне расписания, например после перезагрузки датасета.
// Повторные вызовы до публикации схлопываются в один.
func (w *Worker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Run публикует снимок сразу, затем по таймеру и по Trigger до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.source == nil || w.publisher == nil {
		w.logger.Warn("snapshot worker is disabled: source or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.PublishOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-w.trigger:
			ticker.Reset(w.interval)
		}
	}
}

// PublishOnce собирает снимок и публикует его с повторами.
// Пока датасет не загружен, публиковать нечего: такой цикл пропускается без ошибки.
func (w *Worker) PublishOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	snapshot, err := w.source.Summary(ctx)
	switch {
	case errors.Is(err, domain.ErrDatasetEmpty):
		w.logger.Debug("dataset is empty, snapshot skipped")
		return
	case err != nil:
		w.logger.WithError(err).Warn("failed to build snapshot")
		w.metrics.RecordSnapshot(err)
		return
	}

	err = w.publish(ctx, snapshot)
	w.metrics.RecordSnapshot(err)
	entry := w.logger.WithFields(log.Fields{"snapshot_id": snapshot.ID, "rows": snapshot.Rows})
	if err != nil {
		entry.WithError(err).Error("snapshot publish failed")
		return
	}
	entry.Debug("snapshot published")
}

func (w *Worker) publish(ctx context.Context, snapshot domain.Snapshot) error {
	var err error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if err = w.publisher.Publish(snapshot); err == nil {
			return nil
		}
		if attempt == w.maxAttempts {
			break
		}
		if delay := w.backoff(attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("publish failed after %d attempts: %w", w.maxAttempts, err)
}

// backoff: пауза после attempt-й неудачи: retryDelay, 2*retryDelay, ... не больше maxRetryDelay.
func (w *Worker) backoff(attempt int) time.Duration {
	delay := w.retryDelay
	for i := 1; i < attempt && delay > 0 && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

package snapshot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/oda/internal/domain"
	"github.com/vladislavdragonenkov/oda/internal/metrics"
)

type stubSource struct {
	snapshot domain.Snapshot
	err      error
}

func (s stubSource) Summary(context.Context) (domain.Snapshot, error) {
	return s.snapshot, s.err
}

// recordingPublisher падает первые failures вызовов, остальные запоминает.
type recordingPublisher struct {
	mu        sync.Mutex
	failures  int
	attempts  int
	published []string
}

func (p *recordingPublisher) Publish(s domain.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempts++
	if p.attempts <= p.failures {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, s.ID)
	return nil
}

func (p *recordingPublisher) stats() (attempts, published int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts, len(p.published)
}

func outcomes(t *testing.T, registry *prometheus.Registry) map[string]float64 {
	t.Helper()

	families, err := registry.Gather()
	require.NoError(t, err)

	got := map[string]float64{}
	for _, family := range families {
		if family.GetName() != "oda_snapshots_published_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "outcome" {
					got[label.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}
	return got
}

func snap(id string) stubSource {
	return stubSource{snapshot: domain.Snapshot{ID: id, Rows: 10}}
}

func TestPublishOnce(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		source        stubSource
		failures      int
		wantAttempts  int
		wantPublished int
		wantOutcomes  map[string]float64
	}{
		"first try": {
			source: snap("s1"), wantAttempts: 1, wantPublished: 1,
			wantOutcomes: map[string]float64{metrics.OutcomeOK: 1},
		},
		"retried": {
			source: snap("s1"), failures: 2, wantAttempts: 3, wantPublished: 1,
			wantOutcomes: map[string]float64{metrics.OutcomeOK: 1},
		},
		"gives up": {
			source: snap("s1"), failures: 10, wantAttempts: 3,
			wantOutcomes: map[string]float64{metrics.OutcomeError: 1},
		},
		"source error": {
			source:       stubSource{err: errors.New("db down")},
			wantOutcomes: map[string]float64{metrics.OutcomeError: 1},
		},
		"empty dataset is skipped": {
			source:       stubSource{err: domain.ErrDatasetEmpty},
			wantOutcomes: map[string]float64{},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			registry := prometheus.NewRegistry()
			publisher := &recordingPublisher{failures: tc.failures}
			w := NewWorker(tc.source, publisher,
				WithRetryDelay(0),
				WithMetrics(metrics.NewDashboardMetricsWithRegisterer(registry)),
			)

			w.PublishOnce(context.Background())

			attempts, published := publisher.stats()
			assert.Equal(t, tc.wantAttempts, attempts, "attempts")
			assert.Equal(t, tc.wantPublished, published, "published")
			assert.Equal(t, tc.wantOutcomes, outcomes(t, registry))
		})
	}
}

func TestPublishOnce_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	publisher := &recordingPublisher{}
	NewWorker(snap("s1"), publisher).PublishOnce(ctx)

	attempts, _ := publisher.stats()
	assert.Zero(t, attempts)
}

func TestPublish_StopsRetryingOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	publisher := &recordingPublisher{failures: 10}
	w := NewWorker(snap("s1"), publisher, WithRetryDelay(time.Hour))

	go cancel()
	err := w.publish(ctx, domain.Snapshot{ID: "s1"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_IntervalAndStop(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	publisher := &recordingPublisher{}
	w := NewWorker(snap("tick"), publisher, WithInterval(5*time.Millisecond))

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		_, published := publisher.stats()
		return published >= 3
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRun_Trigger(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publisher := &recordingPublisher{}
	w := NewWorker(snap("s"), publisher, WithInterval(time.Hour))
	go w.Run(ctx)

	require.Eventually(t, func() bool { _, n := publisher.stats(); return n == 1 }, time.Second, time.Millisecond)

	w.Trigger()
	require.Eventually(t, func() bool { _, n := publisher.stats(); return n == 2 }, time.Second, time.Millisecond)
}

func TestTrigger_Coalesces(t *testing.T) {
	t.Parallel()

	w := NewWorker(nil, nil)
	w.Trigger()
	w.Trigger()
	assert.Len(t, w.trigger, 1)
}

func TestRun_DisabledWithoutPublisher(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewWorker(snap("s"), nil).Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled worker must return immediately")
	}
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	w := NewWorker(nil, nil, WithRetryDelay(3*time.Second))
	assert.Equal(t, 3*time.Second, w.backoff(1))
	assert.Equal(t, 6*time.Second, w.backoff(2))
	assert.Equal(t, maxRetryDelay, w.backoff(3))
	assert.Equal(t, maxRetryDelay, w.backoff(40))

	assert.Zero(t, NewWorker(nil, nil, WithRetryDelay(-time.Second)).backoff(2))
}

func TestNewWorker_IgnoresInvalidOptions(t *testing.T) {
	t.Parallel()

	w := NewWorker(nil, nil, WithInterval(-1), WithMaxAttempts(0), WithLogger(nil))
	assert.Equal(t, defaultInterval, w.interval)
	assert.Equal(t, defaultMaxAttempts, w.maxAttempts)
	assert.NotNil(t, w.logger)
}

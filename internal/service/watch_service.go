package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/classpulse/classpulse-api/internal/models"
	appErrors "github.com/classpulse/classpulse-api/pkg/errors"
)

const watchChannelPrefix = "classpulse:changes:"

type watchPubSub interface {
	Publish(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channel string) *redis.PubSub
}

type watchClassLister interface {
	ListAll(ctx context.Context, teacherID string) ([]models.Class, error)
}

type watchStudentLister interface {
	ListAll(ctx context.Context, teacherID string) ([]models.Student, error)
}

type watchLogLister interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.DailyLog, error)
}

// WatchService delivers the tenant's full data snapshot to subscribers
// whenever anything changes. Writers publish a change signal; each subscriber
// requeries the store and receives the complete result set, never a diff.
type WatchService struct {
	pubsub     watchPubSub
	classes    watchClassLister
	students   watchStudentLister
	logs       watchLogLister
	metrics    *MetricsService
	logger     *zap.Logger
	bufferSize int
	enabled    bool
}

// WatchServiceParams groups constructor dependencies.
type WatchServiceParams struct {
	PubSub     watchPubSub
	Classes    watchClassLister
	Students   watchStudentLister
	Logs       watchLogLister
	Metrics    *MetricsService
	Logger     *zap.Logger
	BufferSize int
	Enabled    bool
}

// NewWatchService constructs a WatchService.
func NewWatchService(params WatchServiceParams) *WatchService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	buffer := params.BufferSize
	if buffer <= 0 {
		buffer = 4
	}
	return &WatchService{
		pubsub:     params.PubSub,
		classes:    params.Classes,
		students:   params.Students,
		logs:       params.Logs,
		metrics:    params.Metrics,
		logger:     logger,
		bufferSize: buffer,
		enabled:    params.Enabled,
	}
}

// Enabled reports whether live subscriptions are available.
func (s *WatchService) Enabled() bool {
	return s != nil && s.enabled && s.pubsub != nil
}

// NotifyChange signals every subscriber of the teacher's data that a write
// happened. Failures are logged and dropped; a missed signal only delays the
// next snapshot, it never corrupts state.
func (s *WatchService) NotifyChange(ctx context.Context, teacherID string) {
	if !s.Enabled() {
		return
	}
	if err := s.pubsub.Publish(ctx, watchChannelPrefix+teacherID, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		s.logger.Warn("change notification failed", zap.String("teacher_id", teacherID), zap.Error(err))
	}
}

// Subscribe opens a live snapshot stream for one teacher. The first snapshot
// arrives immediately; subsequent ones follow each change signal. When the
// subscriber lags, intermediate snapshots are dropped in favour of the
// newest. The returned cancel function must be called on teardown.
func (s *WatchService) Subscribe(ctx context.Context, teacherID string) (<-chan models.Snapshot, func(), error) {
	if !s.Enabled() {
		return nil, nil, appErrors.Clone(appErrors.ErrInternal, "live updates are not enabled")
	}

	sub := s.pubsub.Subscribe(ctx, watchChannelPrefix+teacherID)
	if sub == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrInternal, "live updates are not available")
	}

	out := make(chan models.Snapshot, s.bufferSize)
	subCtx, cancelFn := context.WithCancel(ctx)
	if s.metrics != nil {
		s.metrics.WatchSubscriberChange(1)
	}

	go func() {
		defer close(out)
		defer func() {
			if s.metrics != nil {
				s.metrics.WatchSubscriberChange(-1)
			}
		}()

		s.deliver(subCtx, teacherID, out)
		messages := sub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				s.deliver(subCtx, teacherID, out)
			}
		}
	}()

	cancel := func() {
		cancelFn()
		if err := sub.Close(); err != nil {
			s.logger.Warn("failed to close subscription", zap.Error(err))
		}
	}
	return out, cancel, nil
}

// deliver queries the full tenant snapshot and pushes it to the subscriber,
// dropping the oldest buffered snapshot when the channel is full. Read
// failures are logged; the subscriber keeps its last known-good view.
func (s *WatchService) deliver(ctx context.Context, teacherID string, out chan models.Snapshot) {
	snapshot, err := s.snapshot(ctx, teacherID)
	if err != nil {
		s.logger.Warn("snapshot delivery failed", zap.String("teacher_id", teacherID), zap.Error(err))
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case out <- snapshot:
			return
		default:
			select {
			case <-out:
			default:
			}
		}
	}
}

func (s *WatchService) snapshot(ctx context.Context, teacherID string) (models.Snapshot, error) {
	classes, err := s.classes.ListAll(ctx, teacherID)
	if err != nil {
		return models.Snapshot{}, err
	}
	students, err := s.students.ListAll(ctx, teacherID)
	if err != nil {
		return models.Snapshot{}, err
	}
	logs, err := s.logs.ListByTeacher(ctx, teacherID)
	if err != nil {
		return models.Snapshot{}, err
	}
	return models.Snapshot{Classes: classes, Students: students, DailyLogs: logs}, nil
}

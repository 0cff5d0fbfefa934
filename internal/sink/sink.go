// Package sink serializes record persistence: many producers enqueue, one
// consumer goroutine appends to every store.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
	"github.com/JakeFAU/paper-harvester/internal/metrics"
)

// DefaultQueueDepth bounds the number of buffered records.
const DefaultQueueDepth = 256

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("sink closed")

// ErrPanicked marks a store or publisher call that panicked.
var ErrPanicked = errors.New("panicked")

// Config controls the sink.
type Config struct {
	QueueDepth    int
	DeadLetterDir string
	// Topic receives a notification per persisted record when a Publisher is set.
	Topic string
}

// FileNamer produces unique dead-letter file names.
type FileNamer interface {
	NewFileName(prefix, ext string) (string, error)
}

// DeadLetter is the JSON document written for a record a store rejected.
type DeadLetter struct {
	Record   harvest.PaperRecord `json:"record"`
	Store    string              `json:"store"`
	Error    string              `json:"error"`
	FailedAt time.Time           `json:"failed_at"`
}

// Sink implements harvest.RecordSink.
type Sink struct {
	cfg       Config
	stores    []harvest.RecordStore
	publisher harvest.Publisher
	namer     FileNamer
	clock     harvest.Clock
	logger    *zap.Logger

	ch      chan harvest.PaperRecord
	closeMu sync.RWMutex
	closed  bool

	started atomic.Bool
	done    chan struct{}

	enqueued atomic.Int64
	written  atomic.Int64
	failed   atomic.Int64
}

// Option customizes a Sink.
type Option func(*Sink)

// WithPublisher notifies publisher after each successful primary append.
func WithPublisher(p harvest.Publisher) Option {
	return func(s *Sink) {
		s.publisher = p
	}
}

// New builds a Sink. The first store is the primary one; its success decides
// whether a record counts as written.
func New(cfg Config, stores []harvest.RecordStore, namer FileNamer, clock harvest.Clock, logger *zap.Logger, opts ...Option) *Sink {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sink{
		cfg:    cfg,
		stores: stores,
		namer:  namer,
		clock:  clock,
		logger: logger.Named("sink"),
		ch:     make(chan harvest.PaperRecord, cfg.QueueDepth),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue hands a record to the consumer. It blocks while the queue is full.
func (s *Sink) Enqueue(ctx context.Context, record harvest.PaperRecord) error {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case s.ch <- record:
		s.enqueued.Add(1)
		return nil
	}
}

// Close stops intake. Records already queued are still persisted.
func (s *Sink) Close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	close(s.ch)
	s.closed = true
}

// Run is the single consumer. It returns once Close was called and the queue
// is drained; cancellation of ctx does not drop accepted records. Only the
// first call consumes.
func (s *Sink) Run(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	defer close(s.done)

	persistCtx := context.WithoutCancel(ctx)
	for record := range s.ch {
		s.persist(persistCtx, record)
	}
	s.logger.Info("sink drained",
		zap.Int64("written", s.written.Load()),
		zap.Int64("failed", s.failed.Load()),
	)
}

// Wait blocks until Run has returned.
func (s *Sink) Wait() {
	<-s.done
}

// Len returns the number of queued, not yet persisted records.
func (s *Sink) Len() int {
	return len(s.ch)
}

// Stats reports counters so far.
func (s *Sink) Stats() harvest.SinkStats {
	return harvest.SinkStats{
		Enqueued: s.enqueued.Load(),
		Written:  s.written.Load(),
		Failed:   s.failed.Load(),
	}
}

func (s *Sink) persist(ctx context.Context, record harvest.PaperRecord) {
	primaryOK := len(s.stores) > 0
	for i, store := range s.stores {
		err := recovered(func() error { return store.Append(ctx, record) })
		if err == nil {
			continue
		}
		storeName := fmt.Sprintf("%T", store)
		s.logger.Error("record append failed",
			zap.String("store", storeName),
			zap.String("title", record.Title),
			zap.Int("year", record.Year),
			zap.Error(err),
		)
		if i == 0 {
			primaryOK = false
		}
		s.deadLetter(record, storeName, err)
	}
	if len(s.stores) == 0 {
		s.deadLetter(record, "none", errors.New("no record store configured"))
	}

	if !primaryOK {
		s.failed.Add(1)
		metrics.ObserveRecord("failed")
		return
	}
	s.written.Add(1)
	metrics.ObserveRecord("written")

	if s.publisher != nil {
		err := recovered(func() error {
			_, err := s.publisher.Publish(ctx, s.cfg.Topic, record)
			return err
		})
		if err != nil {
			s.logger.Warn("record notification failed",
				zap.String("title", record.Title),
				zap.Int("year", record.Year),
				zap.Error(err),
			)
		}
	}
}

// recovered runs fn and turns a panic into an error, so one bad record cannot
// stop the consumer.
func recovered(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
		}
	}()
	return fn()
}

func (s *Sink) deadLetter(record harvest.PaperRecord, store string, cause error) {
	if s.cfg.DeadLetterDir == "" {
		return
	}
	name, err := s.fileName(record.Year)
	if err != nil {
		s.logger.Error("dead letter name failed", zap.Error(err))
		return
	}
	entry := DeadLetter{
		Record: record,
		Store:  store,
		Error:  cause.Error(),
	}
	if s.clock != nil {
		entry.FailedAt = s.clock.Now()
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		s.logger.Error("dead letter encode failed", zap.Error(err))
		return
	}
	if err := os.MkdirAll(s.cfg.DeadLetterDir, 0o750); err != nil {
		s.logger.Error("dead letter directory failed", zap.Error(err))
		return
	}
	path := filepath.Join(s.cfg.DeadLetterDir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		s.logger.Error("dead letter write failed", zap.String("path", path), zap.Error(err))
		return
	}
	metrics.ObserveRecord("dead_lettered")
	s.logger.Warn("record dead-lettered", zap.String("path", path), zap.String("title", record.Title))
}

func (s *Sink) fileName(year int) (string, error) {
	prefix := strconv.Itoa(year)
	if s.namer == nil {
		return fmt.Sprintf("%s-%d.json", prefix, time.Now().UnixNano()), nil
	}
	return s.namer.NewFileName(prefix, ".json")
}

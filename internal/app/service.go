// Package service wires the ledger, the time machine, the scoring rules and
// the record submission pipeline into the dependencies required by the HTTP
// API and the CLI.
package service

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pointercrate/demonlist/internal/adapters/mq/queue"
	"github.com/pointercrate/demonlist/internal/adapters/mq/worker"
	"github.com/pointercrate/demonlist/internal/adapters/repository"
	"github.com/pointercrate/demonlist/internal/config"
	"github.com/pointercrate/demonlist/internal/domain/dedupe"
	"github.com/pointercrate/demonlist/internal/domain/ledger"
	"github.com/pointercrate/demonlist/internal/domain/model"
	"github.com/pointercrate/demonlist/internal/domain/scoring"
	"github.com/pointercrate/demonlist/internal/domain/timemachine"
	"github.com/pointercrate/demonlist/pkg/logger"
	"github.com/pointercrate/demonlist/pkg/metrics"
)

const (
	fullProgress       = 100
	defaultRankingSize = 100
)

// ListInformation reports the configured section sizes.
type ListInformation struct {
	ListSize         int `json:"list_size"`
	ExtendedListSize int `json:"extended_list_size"`
}

// ListedDemon is one row of the list as served to clients.
type ListedDemon struct {
	model.TimeShiftedDemon
	Section model.Section `json:"section"`
	// Score is the value of a completion, MinimalScore the value of a
	// record at exactly the requirement.
	Score        float64 `json:"score"`
	MinimalScore float64 `json:"minimal_score"`
	Annotation   string  `json:"annotation,omitempty"`
}

// Listing is the list at one instant.
type Listing struct {
	At     time.Time     `json:"at"`
	Live   bool          `json:"live"`
	Demons []ListedDemon `json:"demons"`
}

// RecordSubmission is an unvalidated record claim.
type RecordSubmission struct {
	DemonID  int64
	Player   string
	Progress int
	Video    string
}

// Service implements the API dependencies for the demonlist.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   repository.Store
	live    *config.Live
	ledger  *ledger.Ledger
	machine *timemachine.Reconstructor
	deduper dedupe.Deduper
	queue   queue.Queue
	pool    *worker.Pool

	// Configuration
	workerCount int
	queueSize   int
	dedupeSize  int
	now         func() time.Time

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the persistence backend. Without it an in-memory store
// is used.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithConfig sets the live configuration the list sizes are read from.
func WithConfig(live *config.Live) Option {
	return func(s *Service) {
		if live != nil {
			s.live = live
		}
	}
}

// WithWorkerCount sets the number of submission workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the submission queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the video de-duplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithClock overrides time.Now for the ledger and the time machine.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU(),
		queueSize:   10000,
		dedupeSize:  50000,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting demonlist service...")

	if s.live == nil {
		s.live = config.NewLive(config.New(ctx), "")
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory store")
	}

	s.ledger = ledger.New(s.store, ledger.WithClock(s.now))
	s.machine = timemachine.New(s.store,
		timemachine.WithClock(s.now),
		timemachine.WithBounds(s.live),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(
		queue.WithCapacity(s.queueSize),
		queue.WithBufferSize(s.queueSize),
	)
	s.pool = worker.NewPool(s.workerCount, s.queue, s.store,
		worker.WithFailureHook(s.onPersistFailure),
	)
	s.pool.Start(ctx)

	if last, err := s.ledger.MaxPosition(ctx); err == nil {
		metrics.UpdateLedgerMaxPosition(last)
	}

	s.started = true
	s.logger.Info(ctx, "demonlist service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("listSize", s.live.ListSize()),
		logger.Int("extendedListSize", s.live.ExtendedListSize()),
	)

	return nil
}

// Stop drains the submission queue and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info(ctx, "stopping demonlist service...")

	var firstErr error
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
		firstErr = err
	}
	if err := s.store.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close store: %w", err)
	}

	s.started = false
	s.logger.Info(ctx, "demonlist service stopped",
		logger.Int64("persisted", s.pool.Processed()),
		logger.Int64("failed", s.pool.Failed()),
	)
	return firstErr
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// ListInformation returns the current section sizes.
func (s *Service) ListInformation() ListInformation {
	live := s.config()
	return ListInformation{
		ListSize:         live.ListSize(),
		ExtendedListSize: live.ExtendedListSize(),
	}
}

func (s *Service) config() *config.Live {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.live == nil {
		return config.NewLive(config.New(context.Background()), "")
	}
	return s.live
}

// Listed returns the list as of at. A nil at, or one at or after now,
// returns the live list.
func (s *Service) Listed(ctx context.Context, at *time.Time) (Listing, error) {
	if err := s.ready(); err != nil {
		return Listing{}, err
	}

	var snap timemachine.Snapshot
	var err error
	if at == nil {
		snap, err = s.machine.Current(ctx)
	} else {
		snap, err = s.machine.At(ctx, *at)
	}
	if err != nil {
		return Listing{}, err
	}

	listSize, ext := s.live.ListSize(), s.live.ExtendedListSize()
	out := Listing{At: snap.At, Live: snap.Live, Demons: make([]ListedDemon, 0, len(snap.Demons))}
	for _, d := range snap.Demons {
		pos := d.Position
		entry := ListedDemon{
			TimeShiftedDemon: d,
			Section:          model.Classify(&pos, listSize, ext),
		}
		if entry.Section != model.SectionLegacy {
			entry.Score = scoring.Score(pos, fullProgress, d.Requirement)
			entry.MinimalScore = scoring.Score(pos, d.Requirement, d.Requirement)
		}
		if !snap.Live {
			entry.Annotation = d.Annotation(ext)
		}
		out.Demons = append(out.Demons, entry)
	}
	return out, nil
}

// Demon returns one demon.
func (s *Service) Demon(ctx context.Context, id int64) (model.Demon, error) {
	if err := s.ready(); err != nil {
		return model.Demon{}, err
	}
	return s.ledger.Demon(ctx, id)
}

// Movements returns the position history of one demon.
func (s *Service) Movements(ctx context.Context, id int64) ([]model.Movement, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.machine.Movements(ctx, id)
}

// AddDemon inserts a demon into the ledger.
func (s *Service) AddDemon(ctx context.Context, nd model.NewDemon) (model.Demon, error) {
	if err := s.ready(); err != nil {
		return model.Demon{}, err
	}
	return s.ledger.Insert(ctx, nd)
}

// MoveDemon moves a demon to position.
func (s *Service) MoveDemon(ctx context.Context, id int64, position int) (model.Demon, error) {
	if err := s.ready(); err != nil {
		return model.Demon{}, err
	}
	return s.ledger.Move(ctx, id, position)
}

// RemoveDemon moves a demon to the legacy list.
func (s *Service) RemoveDemon(ctx context.Context, id int64) (model.Demon, error) {
	if err := s.ready(); err != nil {
		return model.Demon{}, err
	}
	return s.ledger.Remove(ctx, id)
}

// SubmitRecord validates a record claim and queues it for persistence.
// The returned submission carries the id the record will be stored under.
func (s *Service) SubmitRecord(ctx context.Context, req RecordSubmission) (model.Submission, error) {
	if err := s.ready(); err != nil {
		return model.Submission{}, err
	}

	sub, err := s.validateSubmission(ctx, req)
	if err != nil {
		metrics.RecordSubmissionRejected(rejectReason(err))
		return model.Submission{}, err
	}

	if s.deduper.SeenAndRecord(ctx, sub.Video) {
		metrics.RecordSubmissionDuplicate()
		s.logger.Debug(ctx, "duplicate submission detected, skipping",
			logger.String("video", sub.Video),
			logger.String("player", sub.Player),
		)
		return model.Submission{}, ErrDuplicateSubmission
	}

	if !s.queue.Enqueue(ctx, sub) {
		s.deduper.Unrecord(ctx, sub.Video)
		metrics.RecordSubmissionRejected("queue_full")
		return model.Submission{}, queue.ErrQueueFull
	}

	metrics.RecordSubmissionEnqueued()
	s.logger.Debug(ctx, "submission queued",
		logger.String("id", sub.ID),
		logger.Int64("demon_id", sub.DemonID),
		logger.String("player", sub.Player),
		logger.Int("progress", sub.Progress),
	)
	return sub, nil
}

func (s *Service) validateSubmission(ctx context.Context, req RecordSubmission) (model.Submission, error) {
	name := strings.TrimSpace(req.Player)
	if name == "" {
		return model.Submission{}, fmt.Errorf("%w: player name is required", ErrInvalidSubmission)
	}
	if req.Progress < 0 || req.Progress > fullProgress {
		return model.Submission{}, ErrProgressOutOfRange
	}

	video, err := dedupe.NormalizeVideo(req.Video)
	if err != nil {
		return model.Submission{}, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}

	d, err := s.ledger.Demon(ctx, req.DemonID)
	if err != nil {
		return model.Submission{}, err
	}
	switch model.Classify(d.Position, s.live.ListSize(), s.live.ExtendedListSize()) {
	case model.SectionLegacy:
		return model.Submission{}, ErrSubmitLegacy
	case model.SectionExtended:
		if req.Progress != fullProgress {
			return model.Submission{}, ErrNon100Extended
		}
	}
	if req.Progress < d.Requirement {
		return model.Submission{}, fmt.Errorf("%w: requirement is %d%%", ErrBelowRequirement, d.Requirement)
	}

	return model.Submission{
		ID:          uuid.NewString(),
		DemonID:     d.ID,
		Player:      name,
		Progress:    req.Progress,
		Video:       video,
		SubmittedAt: s.now().UTC(),
	}, nil
}

// onPersistFailure forgets the video so the player can resubmit it.
func (s *Service) onPersistFailure(ctx context.Context, sub model.Submission, err error) {
	s.deduper.Unrecord(ctx, sub.Video)
	s.logger.Warn(ctx, "submission dropped",
		logger.String("id", sub.ID),
		logger.String("video", sub.Video),
		logger.Error(err),
	)
}

// Record returns one persisted record.
func (s *Service) Record(ctx context.Context, id int64) (model.Record, error) {
	if err := s.ready(); err != nil {
		return model.Record{}, err
	}
	return s.store.Record(ctx, id)
}

// SetRecordStatus approves or rejects a record.
func (s *Service) SetRecordStatus(ctx context.Context, id int64, status model.RecordStatus) (model.Record, error) {
	if err := s.ready(); err != nil {
		return model.Record{}, err
	}
	rec, err := s.store.SetRecordStatus(ctx, id, status)
	if err != nil {
		return model.Record{}, model.StorageFailure("set record status", err)
	}
	s.logger.Info(ctx, "record status changed",
		logger.Int64("record_id", id),
		logger.String("status", string(status)),
	)
	return rec, nil
}

// SetBanned flags a player. Banned players drop out of the ranking.
func (s *Service) SetBanned(ctx context.Context, playerID int64, banned bool) (model.Player, error) {
	if err := s.ready(); err != nil {
		return model.Player{}, err
	}
	p, err := s.store.SetBanned(ctx, playerID, banned)
	if err != nil {
		return model.Player{}, model.StorageFailure("set banned", err)
	}
	return p, nil
}

// Ranking returns the top limit players. A limit outside
// [1, max_ranking_limit] is clamped.
func (s *Service) Ranking(ctx context.Context, limit int) ([]model.RankedPlayer, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	maxLimit := s.live.Current().MaxRankingLimit
	if maxLimit < 1 {
		maxLimit = defaultRankingSize
	}
	if limit < 1 || limit > maxLimit {
		limit = maxLimit
	}

	contribs, err := s.store.Contributions(ctx)
	if err != nil {
		return nil, model.StorageFailure("load contributions", err)
	}
	ranked := scoring.Rank(contribs, s.live)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["dedupeEntries"] = s.deduper.Size()
		stats["persisted"] = s.pool.Processed()
		stats["failed"] = s.pool.Failed()
		stats["listSize"] = s.live.ListSize()
		stats["extendedListSize"] = s.live.ExtendedListSize()
		if last, err := s.ledger.MaxPosition(ctx); err == nil {
			stats["maxPosition"] = last
		}

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerActiveCount(s.workerCount)
	}

	return stats
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/welldanyogia/colancer-registry/internal/metrics"
)

// StoredObject is one object found under AvatarPrefix
type StoredObject struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// AvatarBucket lists and batch-deletes avatar objects. AvatarStore implements it.
type AvatarBucket interface {
	ListAvatars(ctx context.Context, fn func(page []StoredObject) error) error
	DeleteAvatars(ctx context.Context, keys []string) (deleted []string, failed []string, err error)
}

// AvatarReferences reports which of keys are still referenced by a subdomain
type AvatarReferences interface {
	ReferencedAvatarKeys(ctx context.Context, keys []string) (map[string]bool, error)
}

// OrphanSweepConfig holds configuration for the orphaned avatar sweeper
type OrphanSweepConfig struct {
	Interval  time.Duration // default: 24 hours
	MinAge    time.Duration // objects younger than this are left alone (default: 24 hours)
	BatchSize int           // keys checked and deleted per round trip (default: 1000)
	Enabled   bool
}

// DefaultOrphanSweepConfig returns default configuration
func DefaultOrphanSweepConfig() OrphanSweepConfig {
	return OrphanSweepConfig{
		Interval:  24 * time.Hour,
		MinAge:    24 * time.Hour,
		BatchSize: 1000,
		Enabled:   true,
	}
}

// SweepResult holds the result of a sweep
type SweepResult struct {
	StartTime      time.Time
	EndTime        time.Time
	ObjectsScanned int
	OrphansFound   int
	OrphansDeleted int
	BytesFreed     int64
	Errors         []string
}

// OrphanSweeper deletes avatar objects that no subdomain points at any more.
// SetAvatar only logs a failed delete of the previous object, and an upload
// whose database update failed leaves its object behind; this collects both.
type OrphanSweeper struct {
	bucket AvatarBucket
	refs   AvatarReferences
	config OrphanSweepConfig
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	running    bool
	stopChan   chan struct{}
	wg         sync.WaitGroup
	lastResult *SweepResult
}

// NewOrphanSweeper creates a new OrphanSweeper
func NewOrphanSweeper(bucket AvatarBucket, refs AvatarReferences, config OrphanSweepConfig, logger *slog.Logger) *OrphanSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 1000
	}
	if config.Interval <= 0 {
		config.Interval = 24 * time.Hour
	}
	return &OrphanSweeper{
		bucket: bucket,
		refs:   refs,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Start runs a sweep now and then every Interval until Stop
func (s *OrphanSweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("orphan sweeper is already running")
	}
	if !s.config.Enabled {
		s.logger.Info("Orphan avatar sweeper is disabled")
		return nil
	}

	s.running = true
	s.stopChan = make(chan struct{})
	s.wg.Add(1)
	go s.run()

	s.logger.Info("Orphan avatar sweeper started", "interval", s.config.Interval, "min_age", s.config.MinAge)
	return nil
}

// Stop halts the sweeper and waits for an in-progress sweep to finish
func (s *OrphanSweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Orphan avatar sweeper stopped")
}

// LastResult returns the result of the last sweep, or nil
func (s *OrphanSweeper) LastResult() *SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

func (s *OrphanSweeper) run() {
	defer s.wg.Done()

	s.sweepOnce()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweepOnce()
		case <-s.stopChan:
			return
		}
	}
}

func (s *OrphanSweeper) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	result := s.RunNow(ctx)
	s.logger.Info("Orphan avatar sweep completed",
		"scanned", result.ObjectsScanned,
		"found", result.OrphansFound,
		"deleted", result.OrphansDeleted,
		"bytes_freed", result.BytesFreed,
		"errors", len(result.Errors),
		"duration", result.EndTime.Sub(result.StartTime),
	)
}

// RunNow performs a single sweep
func (s *OrphanSweeper) RunNow(ctx context.Context) *SweepResult {
	result := &SweepResult{StartTime: s.now()}
	cutoff := result.StartTime.Add(-s.config.MinAge)

	var batch []StoredObject
	flush := func() {
		if len(batch) > 0 {
			s.sweepBatch(ctx, batch, result)
			batch = batch[:0]
		}
	}

	err := s.bucket.ListAvatars(ctx, func(page []StoredObject) error {
		for _, obj := range page {
			result.ObjectsScanned++
			if obj.LastModified.After(cutoff) {
				continue
			}
			batch = append(batch, obj)
			if len(batch) >= s.config.BatchSize {
				flush()
			}
		}
		return ctx.Err()
	})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("listing avatars: %v", err))
	}
	if ctx.Err() == nil {
		flush()
	}

	result.EndTime = s.now()

	s.mu.Lock()
	s.lastResult = result
	s.mu.Unlock()
	return result
}

// sweepBatch deletes the objects of batch that no subdomain references
func (s *OrphanSweeper) sweepBatch(ctx context.Context, batch []StoredObject, result *SweepResult) {
	keys := make([]string, len(batch))
	for i, obj := range batch {
		keys[i] = obj.Key
	}

	referenced, err := s.refs.ReferencedAvatarKeys(ctx, keys)
	if err != nil {
		// Never delete on an unanswered lookup
		result.Errors = append(result.Errors, fmt.Sprintf("checking references: %v", err))
		return
	}

	sizes := make(map[string]int64)
	var orphans []string
	for _, obj := range batch {
		if !referenced[obj.Key] {
			orphans = append(orphans, obj.Key)
			sizes[obj.Key] = obj.Size
		}
	}
	result.OrphansFound += len(orphans)
	if len(orphans) == 0 {
		return
	}

	deleted, failed, err := s.bucket.DeleteAvatars(ctx, orphans)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return
	}
	result.Errors = append(result.Errors, failed...)
	for _, key := range deleted {
		result.BytesFreed += sizes[key]
	}
	result.OrphansDeleted += len(deleted)
	metrics.AvatarOrphansDeleted.Add(float64(len(deleted)))
}

package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"schedule-management-backend/internal/ai"
	"schedule-management-backend/internal/db"
	"schedule-management-backend/internal/schedule"
)

var (
	ErrEmptyEntrySet    = errors.New("entry_ids must not be empty")
	ErrEmptyImportSet   = errors.New("import_ids must not be empty")
	ErrInvalidType      = errors.New("analysis_type must be parsing, ai or both")
	ErrInvalidOptions   = errors.New("invalid analysis options")
	ErrUserNotFound     = errors.New("user not found")
	ErrEntryNotFound    = errors.New("entry not found")
	ErrImportNotFound   = errors.New("import not found")
	ErrAnalysisNotFound = errors.New("analysis not found")
	ErrAllLocked        = errors.New("all entries are already locked by another analysis")
	ErrEntriesLocked    = errors.New("some entries are locked by another analysis")
)

// Enqueuer hands an accepted analysis to whatever processes it.
type Enqueuer interface {
	Enqueue(analysisID string)
}

type Service struct {
	db       *db.DB
	parser   *schedule.Parser
	analyzer ai.Analyzer
	logger   *zap.Logger

	// EntryParallelism bounds the analyzer calls of one analysis.
	EntryParallelism int
	// Now is the clock; tests pin it.
	Now func() time.Time

	queue Enqueuer
}

func NewService(database *db.DB, parser *schedule.Parser, analyzer ai.Analyzer, logger *zap.Logger) *Service {
	return &Service{
		db:               database,
		parser:           parser,
		analyzer:         analyzer,
		logger:           logger.Named("analysis"),
		EntryParallelism: 4,
		Now:              func() time.Time { return time.Now().UTC() },
	}
}

// SetQueue wires the worker. Without one, analyses stay pending until
// Process is called directly.
func (s *Service) SetQueue(q Enqueuer) { s.queue = q }

// ----------------------------------------------------
// submit
// ----------------------------------------------------

// Submit locks every entry not already locked and creates a pending analysis
// for them. Already-locked entries are reported as skipped.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	ids := dedupe(req.EntryIDs)
	if len(ids) == 0 {
		return nil, ErrEmptyEntrySet
	}
	typ, err := s.validate(req.AnalysisType, req.Options)
	if err != nil {
		return nil, err
	}

	if ok, err := userExists(ctx, s.db, req.UserID); err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	} else if !ok {
		return nil, ErrUserNotFound
	}

	missing, err := missingEntries(ctx, s.db, req.UserID, ids)
	if err != nil {
		return nil, fmt.Errorf("check entries: %w", err)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrEntryNotFound, missing)
	}

	return s.submit(ctx, req.UserID, ids, typ, req.Options, false)
}

// submit locks ids and records the analysis in one transaction. With strict
// set, any entry that is already locked rolls everything back with
// ErrEntriesLocked instead of being skipped.
func (s *Service) submit(ctx context.Context, userID int, ids []int64, typ Type, opts *Options, strict bool) (*SubmitResponse, error) {
	now := s.Now()
	a := &analysisRow{
		ID:               uuid.NewString(),
		UserID:           userID,
		Type:             typ,
		Status:           StatusPending,
		EntriesSubmitted: len(ids),
		CreatedAt:        now,
	}
	if opts != nil {
		a.Options = *opts
	}

	var skipped []int64
	err := s.db.WithTx(ctx, func(tx *db.Tx) error {
		for _, id := range ids {
			ok, err := lockEntry(ctx, tx, userID, id, a.ID, now)
			if err != nil {
				return fmt.Errorf("lock entry %d: %w", id, err)
			}
			if ok {
				a.EntryIDs = append(a.EntryIDs, id)
			} else {
				skipped = append(skipped, id)
			}
		}
		if strict && len(skipped) > 0 {
			return fmt.Errorf("%w: %v", ErrEntriesLocked, skipped)
		}
		if len(a.EntryIDs) == 0 {
			return ErrAllLocked
		}

		a.EntriesLocked = len(a.EntryIDs)
		a.EntriesSkipped = len(skipped)
		return insertAnalysis(ctx, tx, a)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("analysis submitted",
		zap.String("analysis_id", a.ID),
		zap.Int("user_id", userID),
		zap.String("type", string(typ)),
		zap.Int("locked", a.EntriesLocked),
		zap.Int("skipped", a.EntriesSkipped),
	)

	if s.queue != nil {
		s.queue.Enqueue(a.ID)
	}

	return &SubmitResponse{
		AnalysisID:       a.ID,
		EntriesSubmitted: a.EntriesSubmitted,
		EntriesLocked:    a.EntriesLocked,
		EntriesSkipped:   a.EntriesSkipped,
		Status:           StatusPending,
		SkippedEntryIDs:  skipped,
	}, nil
}

func (s *Service) validate(t Type, opts *Options) (Type, error) {
	if t == "" {
		t = TypeBoth
	}
	if !t.Valid() {
		return "", ErrInvalidType
	}
	if opts != nil {
		if opts.Timezone != "" {
			if _, err := time.LoadLocation(opts.Timezone); err != nil {
				return "", fmt.Errorf("%w: timezone %q", ErrInvalidOptions, opts.Timezone)
			}
		}
		if opts.DefaultDurationMinutes < 0 || opts.DefaultDurationMinutes > 24*60 {
			return "", fmt.Errorf("%w: default_duration_minutes out of range", ErrInvalidOptions)
		}
	}
	return t, nil
}

// ----------------------------------------------------
// batch
// ----------------------------------------------------

// Batch submits every entry of the given imports. With SkipLocked (the
// default) locked entries are skipped; otherwise any locked entry rejects
// the whole batch.
func (s *Service) Batch(ctx context.Context, req BatchRequest) (*SubmitResponse, error) {
	importIDs := dedupe(req.ImportIDs)
	if len(importIDs) == 0 {
		return nil, ErrEmptyImportSet
	}
	typ, err := s.validate(req.AnalysisType, req.Options)
	if err != nil {
		return nil, err
	}
	skipLocked := req.SkipLocked == nil || *req.SkipLocked

	if ok, err := userExists(ctx, s.db, req.UserID); err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	} else if !ok {
		return nil, ErrUserNotFound
	}

	entries, missing, err := importEntries(ctx, s.db, req.UserID, importIDs)
	if err != nil {
		return nil, fmt.Errorf("list import entries: %w", err)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrImportNotFound, missing)
	}
	if len(entries) == 0 {
		return nil, ErrEmptyEntrySet
	}

	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return s.submit(ctx, req.UserID, ids, typ, req.Options, !skipLocked)
}

// ----------------------------------------------------
// results / status
// ----------------------------------------------------

// Results returns what has been stored for the analysis so far. It never
// changes state, so repeated polls return the same answer until the worker
// moves on.
func (s *Service) Results(ctx context.Context, userID int, analysisID string) (*ResultsResponse, error) {
	a, err := getAnalysis(ctx, s.db, analysisID)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, ErrAnalysisNotFound
	}

	results, err := listResults(ctx, s.db, analysisID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	out := &ResultsResponse{
		AnalysisID:       a.ID,
		AnalysisType:     a.Type,
		Status:           a.Status,
		EntriesSubmitted: a.EntriesSubmitted,
		EntriesAnalyzed:  len(results),
		Results:          results,
		ErrorMessage:     a.ErrorMessage,
		CreatedAt:        a.CreatedAt,
	}
	if a.CompletedAt.Valid {
		t := a.CompletedAt.Time
		out.CompletedAt = &t
	}
	return out, nil
}

func (s *Service) Status(ctx context.Context, userID int) (*StatusResponse, error) {
	if ok, err := userExists(ctx, s.db, userID); err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	} else if !ok {
		return nil, ErrUserNotFound
	}

	st, err := entryCounts(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("count entries: %w", err)
	}

	oldest, err := oldestLock(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("oldest lock: %w", err)
	}
	if oldest != nil {
		age := int64(s.Now().Sub(*oldest) / time.Second)
		if age < 0 {
			age = 0
		}
		st.OldestLockAgeSeconds = &age
	}
	return &st, nil
}

// ----------------------------------------------------
// unlock
// ----------------------------------------------------

// Unlock force-releases locked entries back to the unlocked state. Entries
// that are not locked are left alone and not counted.
func (s *Service) Unlock(ctx context.Context, req UnlockRequest) (*UnlockResponse, error) {
	ids := dedupe(req.EntryIDs)
	if len(ids) == 0 {
		return nil, ErrEmptyEntrySet
	}

	if ok, err := userExists(ctx, s.db, req.UserID); err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	} else if !ok {
		return nil, ErrUserNotFound
	}

	missing, err := missingEntries(ctx, s.db, req.UserID, ids)
	if err != nil {
		return nil, fmt.Errorf("check entries: %w", err)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrEntryNotFound, missing)
	}

	out := &UnlockResponse{EntryIDs: []int64{}}
	now := s.Now()
	err = s.db.WithTx(ctx, func(tx *db.Tx) error {
		for _, id := range ids {
			ok, err := unlockEntry(ctx, tx, req.UserID, id, now)
			if err != nil {
				return fmt.Errorf("unlock entry %d: %w", id, err)
			}
			if ok {
				out.EntryIDs = append(out.EntryIDs, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.EntriesUnlocked = len(out.EntryIDs)

	s.logger.Info("entries unlocked", zap.Int("user_id", req.UserID), zap.Int64s("entry_ids", out.EntryIDs))
	return out, nil
}

// PendingAnalyses lists analyses a worker should pick up: those still
// pending and those left processing by an interrupted run.
func (s *Service) PendingAnalyses(ctx context.Context) ([]string, error) {
	return unfinishedAnalyses(ctx, s.db, StatusPending, StatusProcessing)
}

func dedupe[T comparable](in []T) []T {
	seen := make(map[T]bool, len(in))
	out := make([]T, 0, len(in))
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

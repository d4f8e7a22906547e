package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"schedule-management-backend/internal/ai"
	"schedule-management-backend/internal/analytics"
	"schedule-management-backend/internal/db"
	"schedule-management-backend/internal/schedule"
)

const errUnlockedDuringAnalysis = "entry unlocked during analysis"

// outcome is the in-memory result of analyzing one entry.
type outcome struct {
	entryID int64
	raw     string
	skip    string // set when the entry was not analyzed at all
	event   *schedule.Event
	ai      *AIAnalysis
	err     error
}

// Process runs one analysis to completion. Finished analyses are left as
// they are, so calling it twice is harmless.
func (s *Service) Process(ctx context.Context, analysisID string) error {
	log := s.logger.With(zap.String("analysis_id", analysisID))

	a, err := getAnalysis(ctx, s.db, analysisID)
	if err != nil {
		return err
	}
	started, err := startAnalysis(ctx, s.db, analysisID)
	if err != nil {
		return fmt.Errorf("start analysis: %w", err)
	}
	if !started {
		return nil
	}
	if err := markInProgress(ctx, s.db, analysisID, s.Now()); err != nil {
		return s.fail(ctx, a, fmt.Errorf("mark in progress: %w", err))
	}

	entries, err := loadEntries(ctx, s.db, a.EntryIDs)
	if err != nil {
		return s.fail(ctx, a, fmt.Errorf("load entries: %w", err))
	}

	parser, err := s.parserFor(a.Options)
	if err != nil {
		return s.fail(ctx, a, err)
	}

	outcomes := make([]outcome, len(a.EntryIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.EntryParallelism))
	for i, id := range a.EntryIDs {
		e, ok := entries[id]
		switch {
		case !ok:
			outcomes[i] = outcome{entryID: id, raw: "{}", skip: "entry no longer exists"}
			continue
		case !e.IsLocked || e.LockAnalysisID.String != analysisID:
			outcomes[i] = outcome{entryID: id, raw: e.RawData, skip: errUnlockedDuringAnalysis}
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = s.analyzeEntry(gctx, parser, a, e)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// cancelled; the run stays in processing and is resumed on restart
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Type != TypeParsing {
		if err := s.attachConflicts(ctx, a, outcomes); err != nil {
			log.Warn("conflict detection failed", zap.Error(err))
		}
	}

	var succeeded, failed int
	now := s.Now()
	err = s.db.WithTx(ctx, func(tx *db.Tx) error {
		for _, o := range outcomes {
			row := resultRow{EntryID: o.entryID, RawData: o.raw, Parsed: o.event, AI: o.ai}
			entryStatus := EntryCompleted
			switch {
			case o.skip != "":
				row.Status, row.Error = ResultFailed, o.skip
			case o.err != nil:
				row.Status, row.Error = ResultFailed, o.err.Error()
				entryStatus = EntryFailed
			default:
				row.Status = ResultSuccess
			}

			if o.skip == "" {
				owned, err := finishEntry(ctx, tx, o.entryID, analysisID, entryStatus, row.Error, now)
				if err != nil {
					return fmt.Errorf("finish entry %d: %w", o.entryID, err)
				}
				if !owned {
					row = resultRow{EntryID: o.entryID, RawData: o.raw, Status: ResultFailed, Error: errUnlockedDuringAnalysis}
				}
			}

			if err := upsertResult(ctx, tx, analysisID, row, now); err != nil {
				return fmt.Errorf("store result %d: %w", o.entryID, err)
			}
			if row.Status == ResultSuccess {
				succeeded++
			} else {
				failed++
			}
		}
		return finishAnalysis(ctx, tx, analysisID, StatusCompleted, "", now)
	})
	if err != nil {
		return s.fail(ctx, a, err)
	}

	log.Info("analysis completed", zap.Int("succeeded", succeeded), zap.Int("failed", failed))
	_ = analytics.Log(ctx, s.db, analytics.Envelope{UserID: a.UserID}, analytics.EventAnalysisCompleted,
		map[string]any{"analysis_type": a.Type, "succeeded": succeeded, "failed": failed},
		"analysis_completed:"+analysisID)
	return nil
}

func (s *Service) analyzeEntry(ctx context.Context, parser *schedule.Parser, a *analysisRow, e entryRow) outcome {
	o := outcome{entryID: e.ID, raw: e.RawData}

	var row schedule.Row
	if err := json.Unmarshal([]byte(e.RawData), &row); err != nil {
		o.err = fmt.Errorf("raw data is not a schedule row: %w", err)
		return o
	}

	req := ai.Request{
		EntryID:                e.ID,
		Row:                    row,
		Parser:                 parser,
		Timezone:               parser.Location().String(),
		DefaultDurationMinutes: int(parser.DefaultDuration() / time.Minute),
		Now:                    s.Now().In(parser.Location()),
	}

	switch a.Type {
	case TypeParsing:
		o.event, o.err = parser.Parse(row)

	case TypeAI:
		res, err := s.analyzer.Analyze(ctx, req)
		if err != nil {
			o.err = err
			break
		}
		o.event = res.Event
		o.ai = aiMetadata(res)

	case TypeBoth:
		ev, err := parser.Parse(row)
		if err != nil {
			o.err = err
			break
		}
		o.event = ev
		req.Parsed = ev
		res, err := s.analyzer.Analyze(ctx, req)
		if err != nil {
			// the parse stands on its own
			s.logger.Warn("ai analysis failed",
				zap.String("analysis_id", a.ID), zap.Int64("entry_id", e.ID), zap.Error(err))
			break
		}
		o.ai = aiMetadata(res)
		o.ai.SuggestedEvent = res.Event
	}

	if o.err == nil && o.event == nil {
		o.err = ai.ErrNoEvent
	}
	if o.err != nil {
		s.logger.Warn("entry analysis failed",
			zap.String("analysis_id", a.ID), zap.Int64("entry_id", e.ID), zap.Error(o.err))
	}
	return o
}

func aiMetadata(res *ai.Result) *AIAnalysis {
	return &AIAnalysis{
		Confidence:  res.Confidence,
		Suggestions: res.Suggestions,
		Notes:       res.Notes,
		Provider:    res.Provider,
	}
}

// attachConflicts checks the batch against itself and against the user's
// earlier completed entries.
func (s *Service) attachConflicts(ctx context.Context, a *analysisRow, outcomes []outcome) error {
	prior, err := completedEvents(ctx, s.db, a.UserID, a.ID)
	if err != nil {
		return err
	}

	inBatch := map[int64]int{}
	items := make([]schedule.Scheduled, 0, len(outcomes)+len(prior))
	for i, o := range outcomes {
		if o.skip != "" || o.err != nil || o.event == nil {
			continue
		}
		inBatch[o.entryID] = i
		items = append(items, schedule.Scheduled{EntryID: o.entryID, Event: *o.event})
	}
	for _, p := range prior {
		if _, dup := inBatch[p.EntryID]; !dup {
			items = append(items, p)
		}
	}

	for id, conflicts := range schedule.DetectConflicts(items) {
		i, ok := inBatch[id]
		if !ok {
			continue
		}
		if outcomes[i].ai == nil {
			outcomes[i].ai = &AIAnalysis{}
		}
		outcomes[i].ai.Conflicts = conflicts
	}
	return nil
}

func (s *Service) parserFor(opts Options) (*schedule.Parser, error) {
	var loc *time.Location
	if opts.Timezone != "" {
		l, err := time.LoadLocation(opts.Timezone)
		if err != nil {
			return nil, fmt.Errorf("%w: timezone %q", ErrInvalidOptions, opts.Timezone)
		}
		loc = l
	}
	return s.parser.WithOverrides(loc, time.Duration(opts.DefaultDurationMinutes)*time.Minute), nil
}

// fail marks the analysis failed and releases the entries it still holds.
func (s *Service) fail(ctx context.Context, a *analysisRow, cause error) error {
	s.logger.Error("analysis failed", zap.String("analysis_id", a.ID), zap.Error(cause))

	// the request context may be what failed
	ctx = context.WithoutCancel(ctx)
	now := s.Now()
	err := s.db.WithTx(ctx, func(tx *db.Tx) error {
		if err := releaseAll(ctx, tx, a.ID, "analysis failed", now); err != nil {
			return err
		}
		return finishAnalysis(ctx, tx, a.ID, StatusFailed, cause.Error(), now)
	})
	return errors.Join(cause, err)
}

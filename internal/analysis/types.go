// Package analysis runs imported schedule entries through the parser and the
// configured analyzer. Each entry carries a lock so at most one analysis works
// on it at a time; the lock is taken on submit and released when the entry
// completes, fails or is force-unlocked.
package analysis

import (
	"encoding/json"
	"time"

	"schedule-management-backend/internal/schedule"
)

type Type string

const (
	TypeParsing Type = "parsing"
	TypeAI      Type = "ai"
	TypeBoth    Type = "both"
)

func (t Type) Valid() bool {
	switch t {
	case TypeParsing, TypeAI, TypeBoth:
		return true
	}
	return false
}

// EntryStatus is the analysis_status column of csv_task_entries.
type EntryStatus string

const (
	EntryNone       EntryStatus = "none"
	EntryPending    EntryStatus = "pending"
	EntryInProgress EntryStatus = "in_progress"
	EntryCompleted  EntryStatus = "completed"
	EntryFailed     EntryStatus = "failed"
)

// EntryState is the lock state of one entry as clients see it in
// ai_analysis. Locked holds exactly when Status is pending or in_progress.
type EntryState struct {
	IsLocked       bool        `json:"is_locked"`
	Status         EntryStatus `json:"analysis_status"`
	LockAnalysisID string      `json:"lock_analysis_id,omitempty"`
	LockedAt       *time.Time  `json:"locked_at,omitempty"`
	ErrorMessage   string      `json:"error_message,omitempty"`
}

func (s EntryState) Locked() bool {
	return s.Status == EntryPending || s.Status == EntryInProgress
}

// Available reports whether a new submit would pick the entry up without
// being told to re-run a completed one.
func (s EntryState) Available() bool {
	return !s.Locked() && (s.Status == EntryNone || s.Status == EntryFailed)
}

// Analysis run status.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Per-entry result status.
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
)

// Options are the locale hints a submit may carry.
type Options struct {
	Timezone               string `json:"timezone,omitempty"`
	DefaultDurationMinutes int    `json:"default_duration_minutes,omitempty"`
	Locale                 string `json:"locale,omitempty"`
}

type SubmitRequest struct {
	UserID       int      `json:"user_id"`
	EntryIDs     []int64  `json:"entry_ids"`
	AnalysisType Type     `json:"analysis_type,omitempty"`
	Options      *Options `json:"options,omitempty"`
}

type SubmitResponse struct {
	AnalysisID       string  `json:"analysis_id"`
	EntriesSubmitted int     `json:"entries_submitted"`
	EntriesLocked    int     `json:"entries_locked"`
	EntriesSkipped   int     `json:"entries_skipped"`
	Status           string  `json:"status"`
	SkippedEntryIDs  []int64 `json:"skipped_entry_ids,omitempty"`
}

type AIAnalysis struct {
	Confidence     float64             `json:"confidence"`
	Suggestions    []string            `json:"suggestions,omitempty"`
	Notes          string              `json:"notes,omitempty"`
	Provider       string              `json:"provider,omitempty"`
	SuggestedEvent *schedule.Event     `json:"suggested_event,omitempty"`
	Conflicts      []schedule.Conflict `json:"conflicts,omitempty"`
}

type EntryResult struct {
	EntryID      int64           `json:"entry_id"`
	Status       string          `json:"status"`
	OriginalData json.RawMessage `json:"original_data"`
	ParsedResult *schedule.Event `json:"parsed_result,omitempty"`
	AIAnalysis   *AIAnalysis     `json:"ai_analysis,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

type ResultsResponse struct {
	AnalysisID       string        `json:"analysis_id"`
	AnalysisType     Type          `json:"analysis_type"`
	Status           string        `json:"status"`
	EntriesSubmitted int           `json:"entries_submitted"`
	EntriesAnalyzed  int           `json:"entries_analyzed"`
	Results          []EntryResult `json:"results"`
	ErrorMessage     string        `json:"error_message,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
}

type StatusResponse struct {
	UserID               int    `json:"user_id"`
	TotalEntries         int    `json:"total_entries"`
	AvailableForAnalysis int    `json:"available_for_analysis"`
	PendingAnalysis      int    `json:"pending_analysis"`
	InProgress           int    `json:"in_progress"`
	Completed            int    `json:"completed"`
	Failed               int    `json:"failed"`
	Locked               int    `json:"locked"`
	OldestLockAgeSeconds *int64 `json:"oldest_lock_age_seconds,omitempty"`
}

type UnlockRequest struct {
	UserID   int     `json:"user_id"`
	EntryIDs []int64 `json:"entry_ids"`
}

type UnlockResponse struct {
	EntriesUnlocked int     `json:"entries_unlocked"`
	EntryIDs        []int64 `json:"entry_ids"`
}

type BatchRequest struct {
	UserID       int      `json:"user_id"`
	ImportIDs    []string `json:"import_ids"`
	AnalysisType Type     `json:"analysis_type,omitempty"`
	SkipLocked   *bool    `json:"skip_locked,omitempty"`
	Options      *Options `json:"options,omitempty"`
}

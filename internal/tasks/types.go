package tasks

import (
	"errors"
	"strings"
	"time"
)

type TaskRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Category    string    `json:"category"`
	Priority    int       `json:"priority"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
}

// normalize trims the text fields and fills the defaults. Priority 0 means 3.
func (r *TaskRequest) normalize() error {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.Location = strings.TrimSpace(r.Location)
	r.Category = strings.TrimSpace(r.Category)

	if r.Title == "" {
		return errors.New("title is required")
	}
	if r.Priority == 0 {
		r.Priority = 3
	}
	if r.Priority < 1 || r.Priority > 5 {
		return errors.New("priority must be between 1 and 5")
	}
	if r.StartAt.IsZero() {
		return errors.New("start_at is required")
	}
	if r.EndAt.IsZero() {
		r.EndAt = r.StartAt.Add(time.Hour)
	}
	if !r.EndAt.After(r.StartAt) {
		return errors.New("end_at must be after start_at")
	}
	return nil
}

type StatusRequest struct {
	Status string `json:"status"`
}

type FromAnalysisRequest struct {
	AnalysisID string `json:"analysis_id"`
}

type FromAnalysisResponse struct {
	AnalysisID   string  `json:"analysis_id"`
	TasksCreated int     `json:"tasks_created"`
	TasksSkipped int     `json:"tasks_skipped"`
	TaskIDs      []int64 `json:"task_ids"`
}

type DashboardStats struct {
	Tasks      map[string]int `json:"tasks"`
	TotalTasks int            `json:"total_tasks"`
	Today      []ManualTask   `json:"today"`
	Analyses   map[string]int `json:"analyses"`
}

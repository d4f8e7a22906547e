package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"schedule-management-backend/internal/analysis"
	"schedule-management-backend/internal/auth"
	"schedule-management-backend/internal/imports"
	"schedule-management-backend/internal/schedule"
	"schedule-management-backend/internal/tasks"
)

type AuthResult struct {
	UserID int    `json:"user_id"`
	Token  string `json:"token"`
}

// ---- auth ----

func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	return c.authenticate(ctx, "/api/auth/login", map[string]string{"email": email, "password": password})
}

func (c *Client) Register(ctx context.Context, email, password, name string) (*AuthResult, error) {
	return c.authenticate(ctx, "/api/auth/register", map[string]string{"email": email, "password": password, "name": name})
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (*AuthResult, error) {
	var out AuthResult
	if err := c.Do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	if err := c.tokens.Save(out.Token); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}
	return &out, nil
}

func (c *Client) Me(ctx context.Context) (*auth.User, error) {
	var out auth.User
	if err := c.Do(ctx, http.MethodGet, "/api/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ---- imports ----

// UploadCSV sends a CSV file as multipart form data. templateID 0 selects the
// builtin template.
func (c *Client) UploadCSV(ctx context.Context, fileName string, content io.Reader, templateID int64) (*imports.CreateResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, content); err != nil {
		return nil, fmt.Errorf("read %s: %w", fileName, err)
	}
	if templateID > 0 {
		if err := mw.WriteField("template_id", strconv.FormatInt(templateID, 10)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/csv-imports", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out imports.CreateResult
	if err := c.send(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ImportRows creates an import from rows already split into fields.
func (c *Client) ImportRows(ctx context.Context, fileName string, rows []schedule.Row) (*imports.CreateResult, error) {
	var out imports.CreateResult
	body := map[string]any{"file_name": fileName, "rows": rows}
	if err := c.Do(ctx, http.MethodPost, "/api/csv-imports", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListImports(ctx context.Context) ([]imports.Import, error) {
	var out []imports.Import
	err := c.Do(ctx, http.MethodGet, "/api/csv-imports", nil, &out)
	return out, err
}

func (c *Client) ListEntries(ctx context.Context, importID string) ([]imports.Entry, error) {
	var out []imports.Entry
	err := c.Do(ctx, http.MethodGet, "/api/csv-imports/"+url.PathEscape(importID)+"/entries", nil, &out)
	return out, err
}

// ---- csv-task-analysis ----

func (c *Client) SubmitAnalysis(ctx context.Context, req analysis.SubmitRequest) (*analysis.SubmitResponse, error) {
	var out analysis.SubmitResponse
	if err := c.Do(ctx, http.MethodPost, "/api/csv-task-analysis/analyze", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetResults(ctx context.Context, analysisID string) (*analysis.ResultsResponse, error) {
	var out analysis.ResultsResponse
	if err := c.Do(ctx, http.MethodGet, "/api/csv-task-analysis/results/"+url.PathEscape(analysisID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetStatus(ctx context.Context, userID int) (*analysis.StatusResponse, error) {
	var out analysis.StatusResponse
	if err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/api/csv-task-analysis/status/%d", userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UnlockEntries(ctx context.Context, req analysis.UnlockRequest) (*analysis.UnlockResponse, error) {
	var out analysis.UnlockResponse
	if err := c.Do(ctx, http.MethodPost, "/api/csv-task-analysis/unlock", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) BatchAnalyze(ctx context.Context, req analysis.BatchRequest) (*analysis.SubmitResponse, error) {
	var out analysis.SubmitResponse
	if err := c.Do(ctx, http.MethodPost, "/api/csv-task-analysis/batch-analyze", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WaitForResults polls GetResults every interval until the analysis is
// completed or failed, or ctx ends.
func (c *Client) WaitForResults(ctx context.Context, analysisID string, interval time.Duration) (*analysis.ResultsResponse, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		res, err := c.GetResults(ctx, analysisID)
		if err != nil {
			return nil, err
		}
		if res.Status == analysis.StatusCompleted || res.Status == analysis.StatusFailed {
			return res, nil
		}

		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ---- tasks ----

func (c *Client) ListTasks(ctx context.Context) ([]tasks.ManualTask, error) {
	var out []tasks.ManualTask
	err := c.Do(ctx, http.MethodGet, "/api/tasks", nil, &out)
	return out, err
}

func (c *Client) CreateTask(ctx context.Context, req tasks.TaskRequest) (*tasks.ManualTask, error) {
	var out tasks.ManualTask
	if err := c.Do(ctx, http.MethodPost, "/api/tasks", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) TasksFromAnalysis(ctx context.Context, analysisID string) (*tasks.FromAnalysisResponse, error) {
	var out tasks.FromAnalysisResponse
	body := tasks.FromAnalysisRequest{AnalysisID: analysisID}
	if err := c.Do(ctx, http.MethodPost, "/api/tasks/from-analysis", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

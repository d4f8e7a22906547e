package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"schedule-management-backend/internal/config"
	"schedule-management-backend/internal/schedule"
)

var ict = time.FixedZone("ICT", 7*3600)

func testParser() *schedule.Parser {
	now := time.Date(2024, 1, 10, 8, 0, 0, 0, ict)
	return schedule.NewParser(schedule.Options{Location: ict, Now: func() time.Time { return now }})
}

func TestHeuristic_ParsedEvent(t *testing.T) {
	h := NewHeuristic(testParser())
	ev := &schedule.Event{
		Title:         "Giải tích",
		StartDatetime: time.Date(2024, 1, 15, 7, 0, 0, 0, ict),
		EndDatetime:   time.Date(2024, 1, 15, 9, 0, 0, 0, ict),
		Location:      "Phòng A101",
		Category:      schedule.CategoryClass,
	}

	res, err := h.Analyze(context.Background(), Request{Parsed: ev})
	require.NoError(t, err)
	assert.Nil(t, res.Event)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
	assert.Empty(t, res.Suggestions)
	assert.Equal(t, "heuristic", res.Provider)
}

func TestHeuristic_ExtractsWhenNotParsed(t *testing.T) {
	h := NewHeuristic(testParser())

	res, err := h.Analyze(context.Background(), Request{Row: schedule.Row{
		Ngay: "13/01/2024", MonHoc: "Thi cuối kỳ", GioBatDau: "8h",
	}})
	require.NoError(t, err)
	require.NotNil(t, res.Event)
	assert.Equal(t, schedule.CategoryExam, res.Event.Category)
	// one warning (assumed end) and no room
	assert.InDelta(t, 0.75, res.Confidence, 1e-9)
	assert.Contains(t, res.Suggestions, "Bổ sung phòng học hoặc địa điểm")
	assert.Contains(t, res.Suggestions, "Lịch rơi vào cuối tuần, xác nhận lại với lớp")

	_, err = h.Analyze(context.Background(), Request{Row: schedule.Row{Ngay: "??", MonHoc: "X", GioBatDau: "8h"}})
	var pe *schedule.ParseError
	assert.True(t, errors.As(err, &pe))
}

func TestHeuristic_UsesRequestParser(t *testing.T) {
	h := NewHeuristic(testParser())
	row := schedule.Row{Ngay: "15/01/2024", MonHoc: "Giải tích", GioBatDau: "7:00"}

	res, err := h.Analyze(context.Background(), Request{Row: row, Parser: testParser().WithOverrides(time.UTC, 45*time.Minute)})
	require.NoError(t, err)
	require.NotNil(t, res.Event)
	assert.True(t, time.Date(2024, 1, 15, 7, 0, 0, 0, time.UTC).Equal(res.Event.StartDatetime))
	_, offset := res.Event.StartDatetime.Zone()
	assert.Zero(t, offset)
	assert.Equal(t, 45*time.Minute, res.Event.EndDatetime.Sub(res.Event.StartDatetime))

	res, err = h.Analyze(context.Background(), Request{Row: row})
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 1, 15, 7, 0, 0, 0, ict).Equal(res.Event.StartDatetime))
}

func TestBuildUserPrompt(t *testing.T) {
	p := BuildUserPrompt(Request{
		Row: schedule.Row{
			Lop: "K20", Ngay: "15/01/2024", MonHoc: "Toán", GioBatDau: "7h",
			Extra: map[string]string{"zeta": "z", "ghi_chu": "mang máy tính"},
		},
		Timezone:               "Asia/Ho_Chi_Minh",
		DefaultDurationMinutes: 100,
	})

	assert.Contains(t, p, "lop: K20\n")
	assert.Contains(t, p, "default_duration_minutes: 100\n")
	assert.Contains(t, p, "mon_hoc: Toán\n")
	assert.NotContains(t, p, "phong:")
	assert.Contains(t, p, "parsed_event: null\n")
	assert.Less(t, strings.Index(p, "extra.ghi_chu"), strings.Index(p, "extra.zeta"))
}

func TestDecodeOutput(t *testing.T) {
	good := "```json\n" + `{"event":{"title":"Toán","start_datetime":"2024-01-15T07:00:00+07:00","end_datetime":"2024-01-15T09:00:00+07:00","priority":3,"category":"class"},"confidence":1.4,"suggestions":["ok"]}` + "\n```"
	res, err := decodeOutput(good, Request{}, "openai")
	require.NoError(t, err)
	require.NotNil(t, res.Event)
	assert.Equal(t, "Toán", res.Event.Title)
	assert.Equal(t, 1.0, res.Confidence)

	_, err = decodeOutput(`{"event":null,"confidence":0.5}`, Request{}, "openai")
	assert.ErrorIs(t, err, ErrNoEvent)

	res, err = decodeOutput(`{"event":null,"confidence":0.5}`, Request{Parsed: &schedule.Event{}}, "openai")
	require.NoError(t, err)
	assert.Nil(t, res.Event)

	_, err = decodeOutput(`{"event":{"title":"x","start_datetime":"2024-01-15T09:00:00Z","end_datetime":"2024-01-15T08:00:00Z"}}`, Request{}, "openai")
	assert.Error(t, err)

	_, err = decodeOutput(`not json`, Request{}, "openai")
	assert.Error(t, err)
}

func fakeAssistant(t *testing.T, finalStatus string) (*httptest.Server, *int32) {
	t.Helper()
	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /threads", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"th_1"}`))
	})
	mux.HandleFunc("POST /threads/th_1/messages", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user", body["role"])
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("POST /threads/th_1/runs", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"run_1"}`))
	})
	mux.HandleFunc("GET /threads/th_1/runs/run_1", func(w http.ResponseWriter, r *http.Request) {
		status := "in_progress"
		if atomic.AddInt32(&polls, 1) > 1 {
			status = finalStatus
		}
		_, _ = w.Write([]byte(`{"status":"` + status + `","last_error":{"message":"boom"}}`))
	})
	mux.HandleFunc("GET /threads/th_1/messages", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"role":"assistant","content":[{"type":"text","text":{"value":"{\"event\":null,\"confidence\":0.8,\"suggestions\":[\"Kiểm tra phòng\"]}"}}]}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &polls
}

func TestOpenAIClient_Analyze(t *testing.T) {
	srv, polls := fakeAssistant(t, "completed")

	c := NewOpenAIClient("key", "asst_1")
	c.BaseURL = srv.URL
	c.PollInterval = time.Millisecond
	c.HTTP = srv.Client()

	res, err := c.Analyze(context.Background(), Request{Parsed: &schedule.Event{Title: "Toán"}})
	require.NoError(t, err)
	assert.Equal(t, "openai", res.Provider)
	assert.InDelta(t, 0.8, res.Confidence, 1e-9)
	assert.Equal(t, []string{"Kiểm tra phòng"}, res.Suggestions)
	assert.GreaterOrEqual(t, atomic.LoadInt32(polls), int32(2))
}

func TestOpenAIClient_RunFailed(t *testing.T) {
	srv, _ := fakeAssistant(t, "failed")

	c := NewOpenAIClient("key", "asst_1")
	c.BaseURL = srv.URL
	c.PollInterval = time.Millisecond
	c.HTTP = srv.Client()

	_, err := c.Analyze(context.Background(), Request{Parsed: &schedule.Event{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed: boom")
}

func TestOpenAIClient_ContextCancel(t *testing.T) {
	srv, _ := fakeAssistant(t, "in_progress")

	c := NewOpenAIClient("key", "asst_1")
	c.BaseURL = srv.URL
	c.PollInterval = time.Millisecond
	c.HTTP = srv.Client()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Analyze(ctx, Request{Parsed: &schedule.Event{}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	a, err := New(ctx, config.AIConfig{Provider: "heuristic"}, testParser(), zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &Heuristic{}, a)

	a, err = New(ctx, config.AIConfig{Provider: "openai", OpenAIKey: "k", AssistantID: "a"}, testParser(), zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, withTimeout{}, a)

	_, err = New(ctx, config.AIConfig{Provider: "gemini"}, testParser(), zap.NewNop())
	assert.Error(t, err)

	_, err = New(ctx, config.AIConfig{Provider: "claude"}, testParser(), zap.NewNop())
	assert.Error(t, err)
}

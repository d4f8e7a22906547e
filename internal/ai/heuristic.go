package ai

import (
	"context"
	"time"

	"schedule-management-backend/internal/schedule"
)

// Heuristic scores entries locally. It is the default provider and needs no
// network access.
type Heuristic struct {
	parser *schedule.Parser
}

func NewHeuristic(parser *schedule.Parser) *Heuristic {
	return &Heuristic{parser: parser}
}

func (h *Heuristic) Analyze(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ev := req.Parsed
	res := &Result{Provider: "heuristic"}
	if ev == nil {
		p := req.Parser
		if p == nil {
			p = h.parser
		}
		parsed, err := p.Parse(req.Row)
		if err != nil {
			return nil, err
		}
		ev = parsed
		res.Event = parsed
	}

	conf := 1.0
	conf -= 0.15 * float64(len(ev.Warnings))

	if ev.Location == "" {
		conf -= 0.1
		res.Suggestions = append(res.Suggestions, "Bổ sung phòng học hoặc địa điểm")
	}
	if len(ev.Warnings) > 0 {
		res.Suggestions = append(res.Suggestions, "Kiểm tra lại ngày giờ của buổi học")
	}
	switch ev.StartDatetime.Weekday() {
	case time.Saturday, time.Sunday:
		res.Suggestions = append(res.Suggestions, "Lịch rơi vào cuối tuần, xác nhận lại với lớp")
	}
	if ev.Category == schedule.CategoryExam {
		res.Suggestions = append(res.Suggestions, "Ôn tập và chuẩn bị giấy tờ dự thi")
	}
	if !req.Now.IsZero() && ev.EndDatetime.Before(req.Now) {
		conf -= 0.1
		res.Notes = "Sự kiện đã diễn ra"
	}

	if conf < 0.1 {
		conf = 0.1
	}
	res.Confidence = conf
	return res, nil
}

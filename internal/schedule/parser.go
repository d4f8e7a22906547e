// Package schedule turns raw Vietnamese class-schedule rows into calendar events.
package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Row is one imported schedule line. Field names follow the Vietnamese CSV
// headers: lớp, ngày, phòng, môn học, giờ bắt đầu, giờ kết thúc.
type Row struct {
	Lop        string            `json:"lop"`
	Ngay       string            `json:"ngay"`
	Phong      string            `json:"phong"`
	MonHoc     string            `json:"mon_hoc"`
	GioBatDau  string            `json:"gio_bat_dau"`
	GioKetThuc string            `json:"gio_ket_thuc"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// IsBlank reports whether every field is empty.
func (r Row) IsBlank() bool {
	for _, v := range []string{r.Lop, r.Ngay, r.Phong, r.MonHoc, r.GioBatDau, r.GioKetThuc} {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	for _, v := range r.Extra {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

type Category string

const (
	CategoryClass    Category = "class"
	CategoryExam     Category = "exam"
	CategoryLab      Category = "lab"
	CategorySeminar  Category = "seminar"
	CategoryDeadline Category = "deadline"
)

// Event is the structured result of parsing a row.
type Event struct {
	Title         string    `json:"title"`
	StartDatetime time.Time `json:"start_datetime"`
	EndDatetime   time.Time `json:"end_datetime"`
	Location      string    `json:"location,omitempty"`
	Priority      int       `json:"priority"`
	Category      Category  `json:"category"`
	Participants  []string  `json:"participants,omitempty"`
	Requirements  []string  `json:"requirements,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	Warnings      []string  `json:"warnings,omitempty"`
}

// ParseError names the field that could not be understood.
type ParseError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s %q: %s", e.Field, e.Value, e.Reason)
}

type Options struct {
	Location        *time.Location
	DefaultDuration time.Duration
	// Now is the reference time for missing years and the urgency bump.
	Now func() time.Time
}

type Parser struct {
	loc      *time.Location
	duration time.Duration
	now      func() time.Time
}

func NewParser(opts Options) *Parser {
	p := &Parser{loc: opts.Location, duration: opts.DefaultDuration, now: opts.Now}
	if p.loc == nil {
		p.loc = time.UTC
	}
	if p.duration <= 0 {
		p.duration = 90 * time.Minute
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// WithOverrides returns a copy using a different zone or default duration.
// Zero values keep the current setting.
func (p *Parser) WithOverrides(loc *time.Location, duration time.Duration) *Parser {
	cp := *p
	if loc != nil {
		cp.loc = loc
	}
	if duration > 0 {
		cp.duration = duration
	}
	return &cp
}

func (p *Parser) Location() *time.Location { return p.loc }

// DefaultDuration is the length assumed when a row has no end time.
func (p *Parser) DefaultDuration() time.Duration { return p.duration }

func (p *Parser) Parse(row Row) (*Event, error) {
	now := p.now().In(p.loc)
	notes := Normalize(extraNotes(row.Extra))

	title, reqs := splitRequirements(Normalize(row.MonHoc))
	if title == "" {
		return nil, &ParseError{Field: "mon_hoc", Reason: "subject is required"}
	}
	_, noteReqs := splitRequirements(notes)
	reqs = append(reqs, noteReqs...)

	date, err := ParseDate(row.Ngay, now.Year())
	if err != nil {
		return nil, &ParseError{Field: "ngay", Value: row.Ngay, Reason: err.Error()}
	}
	day := date.In(p.loc)

	var warnings []string
	if date.Weekday != nil && *date.Weekday != day.Weekday() {
		warnings = append(warnings, fmt.Sprintf("weekday in row does not match %s", day.Format("02/01/2006")))
	}

	var start, end Clock
	haveEnd := false

	if from, to, ok := parsePeriods(row.GioBatDau); ok {
		start, _ = PeriodStart(from)
		if to != 0 {
			end, _ = PeriodEnd(to)
			haveEnd = true
		}
	} else {
		start, err = ParseClock(row.GioBatDau)
		if err != nil {
			return nil, &ParseError{Field: "gio_bat_dau", Value: row.GioBatDau, Reason: err.Error()}
		}
	}

	if strings.TrimSpace(row.GioKetThuc) != "" {
		if from, to, ok := parsePeriods(row.GioKetThuc); ok {
			last := from
			if to != 0 {
				last = to
			}
			end, _ = PeriodEnd(last)
		} else {
			end, err = ParseClock(row.GioKetThuc)
			if err != nil {
				return nil, &ParseError{Field: "gio_ket_thuc", Value: row.GioKetThuc, Reason: err.Error()}
			}
		}
		haveEnd = true
	}

	startAt := day.Add(time.Duration(start.Minutes()) * time.Minute)
	endAt := startAt.Add(p.duration)
	if haveEnd {
		endAt = day.Add(time.Duration(end.Minutes()) * time.Minute)
	} else {
		warnings = append(warnings, fmt.Sprintf("end time missing, assumed %d minutes", int(p.duration/time.Minute)))
	}
	if !endAt.After(startAt) {
		return nil, &ParseError{Field: "gio_ket_thuc", Value: row.GioKetThuc, Reason: "end time must be after start time"}
	}

	category := Categorize(title + " " + notes)

	ev := &Event{
		Title:         title,
		StartDatetime: startAt,
		EndDatetime:   endAt,
		Location:      NormalizeRoom(row.Phong),
		Category:      category,
		Priority:      Priority(category, startAt, now),
		Requirements:  reqs,
		Notes:         notes,
		Warnings:      warnings,
	}
	if lop := Normalize(row.Lop); lop != "" {
		ev.Participants = []string{lop}
	}
	return ev, nil
}

// categoryKeywords are matched against folded text. Accented ones are
// matched with their diacritics because the folded form is ambiguous:
// "hạn" (due) and "hàn" (welding) both fold to "han".
var categoryKeywords = []struct {
	category Category
	words    []string
	accented []string
}{
	{CategoryExam, []string{"thi", "kiem tra", "bao ve", "exam", "midterm", "final"}, nil},
	{CategoryDeadline, []string{"nop", "han nop", "han chot", "han cuoi", "deadline"}, []string{"hạn"}},
	{CategoryLab, []string{"thuc hanh", "thinghiem", "lab"}, nil},
	{CategorySeminar, []string{"seminar", "hoi thao", "bao cao", "sinh hoat"}, nil},
}

// Categorize infers the event category from subject and notes.
func Categorize(text string) Category {
	// "thí nghiệm" (experiment) must not read as "thi" (exam)
	f := strings.ReplaceAll(Fold(text), "thi nghiem", "thinghiem")
	lower := strings.ToLower(Normalize(text))
	for _, c := range categoryKeywords {
		for _, w := range c.words {
			if containsWord(f, w) {
				return c.category
			}
		}
		for _, w := range c.accented {
			if containsWord(lower, w) {
				return c.category
			}
		}
	}
	return CategoryClass
}

var basePriority = map[Category]int{
	CategoryExam:     5,
	CategoryDeadline: 4,
	CategoryLab:      3,
	CategoryClass:    3,
	CategorySeminar:  2,
}

// Priority is 1..5; events starting within 48 hours get one extra point.
func Priority(c Category, start, now time.Time) int {
	p, ok := basePriority[c]
	if !ok {
		p = 3
	}
	if start.After(now) && start.Sub(now) <= 48*time.Hour {
		p++
	}
	if p > 5 {
		p = 5
	}
	return p
}

// NormalizeRoom turns "p.a101", "P A101" or "phòng a101" into "Phòng A101".
// Names without a room number are returned as typed.
func NormalizeRoom(s string) string {
	s = Normalize(s)
	if s == "" {
		return ""
	}
	f := Fold(s)
	switch f {
	case "online", "truc tuyen", "zoom", "google meet", "ms teams":
		return "Trực tuyến"
	}

	words := strings.Fields(s)
	fw := strings.Fields(f)
	switch {
	case fw[0] == "phong":
		words = words[1:]
	case fw[0] == "p." || fw[0] == "p":
		words = words[1:]
	case strings.HasPrefix(fw[0], "p.") && len(fw[0]) > 2:
		words[0] = words[0][2:]
	}
	rest := strings.Join(words, " ")
	if rest == "" || !strings.ContainsAny(rest, "0123456789") {
		return s
	}
	return "Phòng " + strings.ToUpper(rest)
}

// requirementKeywords open a requirement clause, longest first. They are
// compared as lower-case words with diacritics kept, so "Mạng máy tính"
// (computer networks) is a subject and "mang laptop" is a requirement.
var requirementKeywords = [][]string{
	{"mang", "theo"},
	{"chuẩn", "bị"},
	{"chuan", "bi"},
	{"yêu", "cầu"},
	{"yeu", "cau"},
	{"mang"},
}

const clauseTrim = " ,-–:"

// splitRequirements pulls "mang ...", "chuẩn bị ..." and "yêu cầu: ..." clauses
// out of s and returns the remaining text and the clauses. A keyword may
// start a bracketed segment or appear anywhere inside one, typically after
// a comma or " - "; the text after it up to the end of the segment is split
// on commas into separate requirements.
func splitRequirements(s string) (string, []string) {
	if s == "" {
		return "", nil
	}

	seps := func(r rune) bool { return r == '(' || r == ')' || r == ';' || r == '|' }
	var kept, reqs []string
	for _, seg := range strings.FieldsFunc(s, seps) {
		words := strings.Fields(seg)
		at, n := findRequirement(words)
		if at < 0 {
			if t := strings.Trim(seg, clauseTrim); t != "" {
				kept = append(kept, t)
			}
			continue
		}
		if t := strings.Trim(strings.Join(words[:at], " "), clauseTrim); t != "" {
			kept = append(kept, t)
		}
		reqs = append(reqs, requirementClauses(strings.Join(words[at+n:], " "))...)
	}
	return strings.Join(kept, " - "), reqs
}

// findRequirement returns the index of the first keyword in words and its
// length in words, or -1.
func findRequirement(words []string) (int, int) {
	lower := make([]string, len(words))
	for i, w := range words {
		lower[i] = strings.ToLower(strings.TrimRight(w, ":"))
	}
	for i := range lower {
		for _, kw := range requirementKeywords {
			if i+len(kw) > len(lower) {
				continue
			}
			match := true
			for j, k := range kw {
				if lower[i+j] != k {
					match = false
					break
				}
			}
			// a colon may only follow the whole keyword: "mang: laptop", not "mang: theo"
			if match && len(kw) > 1 && strings.HasSuffix(words[i], ":") {
				match = false
			}
			if match {
				return i, len(kw)
			}
		}
	}
	return -1, 0
}

func requirementClauses(s string) []string {
	var out []string
	for _, c := range strings.Split(strings.ReplaceAll(s, " - ", ","), ",") {
		words := strings.Fields(c)
		if at, n := findRequirement(words); at == 0 {
			words = words[n:]
		}
		if c = strings.Trim(strings.Join(words, " "), clauseTrim); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func extraNotes(extra map[string]string) string {
	for _, k := range []string{"ghi_chu", "ghichu", "notes", "note"} {
		if v, ok := extra[k]; ok {
			return v
		}
	}
	return ""
}

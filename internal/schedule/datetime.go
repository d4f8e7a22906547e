package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	errEmpty       = errors.New("value is empty")
	errUnsupported = errors.New("unrecognized format")
)

var (
	weekdayPrefixRe = regexp.MustCompile(`^(?:thu\s*(2|3|4|5|6|7|hai|ba|tu|nam|sau|bay)|t([2-7])|(cn|chu nhat))\b\s*[,:\-]?\s*`)
	wordyDateRe     = regexp.MustCompile(`^(?:ngay\s+)?(\d{1,2})\s+thang\s+(\d{1,2})(?:\s+nam\s+(\d{2,4}))?$`)
	isoDateRe       = regexp.MustCompile(`^(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})$`)
	dmyDateRe       = regexp.MustCompile(`^(?:ngay\s+)?(\d{1,2})[/\-.](\d{1,2})(?:[/\-.](\d{2,4}))?$`)

	clockRe   = regexp.MustCompile(`^(\d{1,2})\s*(?:(?::|\.|h|g|gio)\s*(?:(\d{1,2})\s*(?:phut|p)?)?)?$`)
	periodRe  = regexp.MustCompile(`^tiet\s*(\d{1,2})(?:\s*(?:-|den|toi|->)\s*(?:tiet\s*)?(\d{1,2}))?$`)
	dayPartRe = regexp.MustCompile(`\s*\b(sang|trua|chieu|toi|dem|am|pm)\b\s*`)
)

var weekdayWords = map[string]time.Weekday{
	"2": time.Monday, "hai": time.Monday,
	"3": time.Tuesday, "ba": time.Tuesday,
	"4": time.Wednesday, "tu": time.Wednesday,
	"5": time.Thursday, "nam": time.Thursday,
	"6": time.Friday, "sau": time.Friday,
	"7": time.Saturday, "bay": time.Saturday,
}

// DateValue is a calendar date plus the weekday the row claimed, if any.
type DateValue struct {
	Year    int
	Month   time.Month
	Day     int
	Weekday *time.Weekday
}

// In returns midnight of the date in loc.
func (d DateValue) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// ParseDate understands dd/mm/yyyy (also '-' and '.'), yyyy-mm-dd,
// "ngày 15 tháng 1 năm 2024" and an optional weekday prefix such as "Thứ 2,"
// or "CN". A missing year takes defaultYear; two-digit years are 20xx.
func ParseDate(s string, defaultYear int) (DateValue, error) {
	f := Fold(s)
	if f == "" {
		return DateValue{}, errEmpty
	}

	var weekday *time.Weekday
	if m := weekdayPrefixRe.FindStringSubmatch(f); m != nil {
		var wd time.Weekday
		switch {
		case m[3] != "":
			wd = time.Sunday
		case m[2] != "":
			wd = weekdayWords[m[2]]
		default:
			wd = weekdayWords[m[1]]
		}
		weekday = &wd
		f = strings.TrimSpace(f[len(m[0]):])
	}

	var y, mo, d int
	switch {
	case wordyDateRe.MatchString(f):
		m := wordyDateRe.FindStringSubmatch(f)
		d, mo, y = atoi(m[1]), atoi(m[2]), yearOr(m[3], defaultYear)
	case isoDateRe.MatchString(f):
		m := isoDateRe.FindStringSubmatch(f)
		y, mo, d = atoi(m[1]), atoi(m[2]), atoi(m[3])
	case dmyDateRe.MatchString(f):
		m := dmyDateRe.FindStringSubmatch(f)
		d, mo, y = atoi(m[1]), atoi(m[2]), yearOr(m[3], defaultYear)
	default:
		return DateValue{}, errUnsupported
	}

	if mo < 1 || mo > 12 || d < 1 || d > 31 {
		return DateValue{}, fmt.Errorf("date out of range: day %d month %d", d, mo)
	}
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d {
		return DateValue{}, fmt.Errorf("day %d does not exist in %02d/%d", d, mo, y)
	}

	return DateValue{Year: y, Month: time.Month(mo), Day: d, Weekday: weekday}, nil
}

// Clock is a time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) Minutes() int { return c.Hour*60 + c.Minute }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// ParseClock understands "7:30", "07h30", "7h", "7g30", "7 giờ 30 phút" and
// the day-part words sáng, trưa, chiều, tối, đêm (or am/pm).
func ParseClock(s string) (Clock, error) {
	f := Fold(s)
	if f == "" {
		return Clock{}, errEmpty
	}

	part := ""
	if m := dayPartRe.FindStringSubmatch(f); m != nil {
		part = m[1]
		f = strings.TrimSpace(dayPartRe.ReplaceAllString(f, " "))
	}

	m := clockRe.FindStringSubmatch(f)
	if m == nil {
		return Clock{}, errUnsupported
	}
	h := atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute = atoi(m[2])
	}

	switch part {
	case "chieu", "toi", "pm":
		if h < 12 {
			h += 12
		}
	case "dem":
		if h >= 6 && h < 12 {
			h += 12
		}
	case "trua":
		if h < 6 {
			h += 12
		}
	case "sang", "am":
		if h == 12 {
			h = 0
		}
	}

	if h > 23 || minute > 59 {
		return Clock{}, fmt.Errorf("time out of range: %02d:%02d", h, minute)
	}
	return Clock{Hour: h, Minute: minute}, nil
}

const periodLength = 50 * time.Minute

// PeriodStart returns the start of teaching period n ("tiết n"): periods 1-6
// run from 07:00, 7-12 from 13:00 and 13-15 from 18:00, 50 minutes each.
func PeriodStart(n int) (Clock, bool) {
	var base, idx int
	switch {
	case n >= 1 && n <= 6:
		base, idx = 7*60, n-1
	case n >= 7 && n <= 12:
		base, idx = 13*60, n-7
	case n >= 13 && n <= 15:
		base, idx = 18*60, n-13
	default:
		return Clock{}, false
	}
	total := base + idx*int(periodLength/time.Minute)
	return Clock{Hour: total / 60, Minute: total % 60}, true
}

// PeriodEnd returns the end of period n.
func PeriodEnd(n int) (Clock, bool) {
	c, ok := PeriodStart(n)
	if !ok {
		return Clock{}, false
	}
	total := c.Minutes() + int(periodLength/time.Minute)
	return Clock{Hour: total / 60, Minute: total % 60}, true
}

// parsePeriods reads "Tiết 1-3" or "tiết 4". to is 0 when only one period is given.
func parsePeriods(s string) (from, to int, ok bool) {
	m := periodRe.FindStringSubmatch(Fold(s))
	if m == nil {
		return 0, 0, false
	}
	from = atoi(m[1])
	if m[2] != "" {
		to = atoi(m[2])
	}
	if _, valid := PeriodStart(from); !valid {
		return 0, 0, false
	}
	if to != 0 {
		if _, valid := PeriodStart(to); !valid || to < from {
			return 0, 0, false
		}
	}
	return from, to, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func yearOr(s string, def int) int {
	if s == "" {
		return def
	}
	y := atoi(s)
	if len(s) == 2 {
		y += 2000
	}
	return y
}

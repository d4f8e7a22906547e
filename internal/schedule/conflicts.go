package schedule

import (
	"fmt"
	"sort"
	"time"
)

// Scheduled is an event tied to the entry it came from.
type Scheduled struct {
	EntryID int64
	Event   Event
}

// Conflict describes an overlap with another entry's event.
type Conflict struct {
	EntryID     int64     `json:"entry_id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start_datetime"`
	End         time.Time `json:"end_datetime"`
	Description string    `json:"description"`
}

// DetectConflicts returns, for every entry that overlaps another, the list of
// entries it overlaps with. Touching intervals (one ends when the next starts)
// do not conflict.
func DetectConflicts(items []Scheduled) map[int64][]Conflict {
	sorted := make([]Scheduled, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Event.StartDatetime.Equal(sorted[j].Event.StartDatetime) {
			return sorted[i].Event.StartDatetime.Before(sorted[j].Event.StartDatetime)
		}
		return sorted[i].EntryID < sorted[j].EntryID
	})

	out := make(map[int64][]Conflict)
	for i := range sorted {
		a := sorted[i]
		for j := i + 1; j < len(sorted); j++ {
			b := sorted[j]
			if !b.Event.StartDatetime.Before(a.Event.EndDatetime) {
				break
			}
			if a.EntryID == b.EntryID {
				continue
			}
			out[a.EntryID] = append(out[a.EntryID], conflictWith(b))
			out[b.EntryID] = append(out[b.EntryID], conflictWith(a))
		}
	}
	return out
}

func conflictWith(other Scheduled) Conflict {
	ev := other.Event
	desc := fmt.Sprintf("Trùng lịch với %q (%s-%s)", ev.Title,
		ev.StartDatetime.Format("15:04"), ev.EndDatetime.Format("15:04 02/01/2006"))
	if ev.Location != "" {
		desc += " tại " + ev.Location
	}
	return Conflict{
		EntryID:     other.EntryID,
		Title:       ev.Title,
		Start:       ev.StartDatetime,
		End:         ev.EndDatetime,
		Description: desc,
	}
}

package ai

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// BuildUserPrompt formats one entry as the user message for the remote models.
func BuildUserPrompt(req Request) string {

	var b strings.Builder

	field := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\n")
	}

	field("lop", req.Row.Lop)
	field("ngay", req.Row.Ngay)
	field("phong", req.Row.Phong)
	field("mon_hoc", req.Row.MonHoc)
	field("gio_bat_dau", req.Row.GioBatDau)
	field("gio_ket_thuc", req.Row.GioKetThuc)
	keys := make([]string, 0, len(req.Row.Extra))
	for k := range req.Row.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		field("extra."+k, req.Row.Extra[k])
	}

	field("timezone", req.Timezone)
	if req.DefaultDurationMinutes > 0 {
		field("default_duration_minutes", strconv.Itoa(req.DefaultDurationMinutes))
	}
	if !req.Now.IsZero() {
		field("reference_time", req.Now.Format(time.RFC3339))
	}

	if req.Parsed != nil {
		parsed, _ := json.Marshal(req.Parsed)
		field("parsed_event", string(parsed))
	} else {
		field("parsed_event", "null")
	}

	return b.String()
}

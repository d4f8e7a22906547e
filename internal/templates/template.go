// Package templates describes which CSV columns an import expects and how
// their headers map onto schedule rows.
package templates

import (
	"fmt"
	"strings"
	"time"

	"schedule-management-backend/internal/schedule"
)

// Row fields a column can map to.
const (
	FieldLop        = "lop"
	FieldNgay       = "ngay"
	FieldPhong      = "phong"
	FieldMonHoc     = "mon_hoc"
	FieldGioBatDau  = "gio_bat_dau"
	FieldGioKetThuc = "gio_ket_thuc"
)

var knownFields = []string{FieldLop, FieldNgay, FieldPhong, FieldMonHoc, FieldGioBatDau, FieldGioKetThuc}

// requiredFields must be present in every template and every uploaded header.
var requiredFields = []string{FieldNgay, FieldMonHoc, FieldGioBatDau}

type Column struct {
	Field   string   `json:"field"`
	Header  string   `json:"header"`
	Aliases []string `json:"aliases,omitempty"`
}

type Template struct {
	ID         int64     `json:"id"`
	UserID     *int      `json:"user_id,omitempty"`
	Name       string    `json:"name"`
	Profession string    `json:"profession,omitempty"`
	Columns    []Column  `json:"columns"`
	Builtin    bool      `json:"builtin"`
	CreatedAt  time.Time `json:"created_at"`
}

// Builtin is the Vietnamese university timetable layout. It has id 0 and is
// used whenever an import names no template.
func Builtin() Template {
	return Template{
		Name:       "Thời khóa biểu",
		Profession: "student",
		Builtin:    true,
		Columns: []Column{
			{Field: FieldLop, Header: "Lớp", Aliases: []string{"lop hoc", "ma lop", "nhom", "class"}},
			{Field: FieldNgay, Header: "Ngày", Aliases: []string{"ngay hoc", "ngay thi", "thu ngay", "date"}},
			{Field: FieldPhong, Header: "Phòng", Aliases: []string{"phong hoc", "phong thi", "dia diem", "room", "location"}},
			{Field: FieldMonHoc, Header: "Môn học", Aliases: []string{"mon", "ten mon", "hoc phan", "noi dung", "subject"}},
			{Field: FieldGioBatDau, Header: "Giờ bắt đầu", Aliases: []string{"bat dau", "tu", "tiet", "thoi gian bat dau", "start"}},
			{Field: FieldGioKetThuc, Header: "Giờ kết thúc", Aliases: []string{"ket thuc", "den", "thoi gian ket thuc", "end"}},
		},
	}
}

// Validate checks a user-defined template before it is stored.
func (t Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("columns are required")
	}

	seen := map[string]bool{}
	for _, c := range t.Columns {
		if !isKnownField(c.Field) {
			return fmt.Errorf("unknown field %q", c.Field)
		}
		if seen[c.Field] {
			return fmt.Errorf("field %q mapped twice", c.Field)
		}
		seen[c.Field] = true
		if strings.TrimSpace(c.Header) == "" {
			return fmt.Errorf("column %q needs a header", c.Field)
		}
	}
	for _, f := range requiredFields {
		if !seen[f] {
			return fmt.Errorf("field %q is required", f)
		}
	}
	return nil
}

func isKnownField(f string) bool {
	for _, k := range knownFields {
		if k == f {
			return true
		}
	}
	return false
}

// Mapping assigns each column index of an uploaded header to a row field.
// Columns the template does not know land in Row.Extra.
type Mapping struct {
	fields []string // "" for extra columns
	extra  []string
}

// Map matches headers against the template, ignoring case, accents and
// underscores.
func (t Template) Map(headers []string) (*Mapping, error) {
	lookup := map[string]string{}
	for _, c := range t.Columns {
		lookup[headerKey(c.Field)] = c.Field
		lookup[headerKey(c.Header)] = c.Field
		for _, a := range c.Aliases {
			lookup[headerKey(a)] = c.Field
		}
	}

	m := &Mapping{fields: make([]string, len(headers)), extra: make([]string, len(headers))}
	found := map[string]bool{}
	for i, h := range headers {
		key := headerKey(h)
		if f, ok := lookup[key]; ok && !found[f] {
			m.fields[i] = f
			found[f] = true
			continue
		}
		if key != "" {
			m.extra[i] = strings.ReplaceAll(key, " ", "_")
		}
	}

	var missing []string
	for _, f := range requiredFields {
		if !found[f] {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return m, nil
}

// Row converts one CSV record. Short records leave the trailing fields empty.
func (m *Mapping) Row(record []string) schedule.Row {
	var r schedule.Row
	for i, v := range record {
		if i >= len(m.fields) {
			break
		}
		v = schedule.Normalize(v)
		switch m.fields[i] {
		case FieldLop:
			r.Lop = v
		case FieldNgay:
			r.Ngay = v
		case FieldPhong:
			r.Phong = v
		case FieldMonHoc:
			r.MonHoc = v
		case FieldGioBatDau:
			r.GioBatDau = v
		case FieldGioKetThuc:
			r.GioKetThuc = v
		default:
			if m.extra[i] == "" || v == "" {
				continue
			}
			if r.Extra == nil {
				r.Extra = map[string]string{}
			}
			r.Extra[m.extra[i]] = v
		}
	}
	return r
}

func headerKey(s string) string {
	s = strings.NewReplacer("_", " ", "-", " ", "/", " ", ".", " ").Replace(s)
	return schedule.Fold(strings.TrimPrefix(s, "\ufeff"))
}

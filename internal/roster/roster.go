// Package roster parses student roster files.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pavelanni/evalhub/internal/model"
)

// ErrNoRows is returned when a roster has a header but no usable data rows.
var ErrNoRows = errors.New("roster has no student rows")

// Header aliases, compared after lower-casing and trimming.
var (
	nameHeaders   = []string{"fullname", "full_name", "nombre"}
	emailHeaders  = []string{"email", "correo"}
	yearHeaders   = []string{"year", "año", "anio"}
	careerHeaders = []string{"career", "carrera"}
)

// RowError reports a malformed data row. Row is the 1-based line number in
// the file, counting the header.
type RowError struct {
	Row int
	Msg string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Msg)
}

// ParseCSV reads a roster with a header row followed by one student per
// line. Blank lines are skipped. Every returned input carries groupIDs.
func ParseCSV(r io.Reader, groupIDs []string) ([]model.StudentInput, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("roster must have a header row and at least one data row")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}
	// Strip a UTF-8 byte order mark left by spreadsheet exports.
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	nameIdx := column(header, nameHeaders)
	if nameIdx < 0 {
		return nil, errors.New(`roster must have a "fullName" or "nombre" column`)
	}
	emailIdx := column(header, emailHeaders)
	if emailIdx < 0 {
		return nil, errors.New(`roster must have an "email" or "correo" column`)
	}
	yearIdx := column(header, yearHeaders)
	careerIdx := column(header, careerHeaders)

	var students []model.StudentInput
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read roster: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if blank(rec) {
			continue
		}
		name := field(rec, nameIdx)
		email := field(rec, emailIdx)
		if name == "" || email == "" {
			return nil, &RowError{Row: line, Msg: "fullName and email are required"}
		}
		students = append(students, model.StudentInput{
			FullName: name,
			Email:    email,
			Year:     optional(field(rec, yearIdx)),
			Career:   optional(field(rec, careerIdx)),
			GroupIDs: groupIDs,
		})
	}
	if len(students) == 0 {
		return nil, ErrNoRows
	}
	return students, nil
}

func column(header, aliases []string) int {
	for i, h := range header {
		for _, a := range aliases {
			if h == a {
				return i
			}
		}
	}
	return -1
}

func field(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[idx])
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

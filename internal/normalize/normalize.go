// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize turns a raw snapshot CSV into canonical, deduplicated
// registry records. A malformed file (missing columns, ragged rows,
// unreadable bytes) fails the whole pass; downstream never sees partial
// output.
package normalize

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/registry-engine/internal/fingerprint"
	"github.com/pdiddy/registry-engine/pkg/types"
)

// Columns is the declared snapshot schema, in order. The header row of an
// incoming file must contain exactly these names (case-insensitive).
var Columns = []string{
	"nameoforg",
	"inn",
	"ogrn",
	"productname",
	"okpd2",
	"tnved",
	"regnumber",
	"registernumber",
	"percent",
	"domestic",
	"level",
	"regdate",
	"expirydate",
}

// nullSentinel is collapsed to nil alongside the empty string.
const nullSentinel = "-"

var (
	decimalRe  = regexp.MustCompile(`^\d+([.,]\d+)?$`)
	nonDigitRe = regexp.MustCompile(`\D`)

	truthy = map[string]bool{"да": true, "истина": true, "true": true, "yes": true, "1": true}
	falsy  = map[string]bool{"нет": true, "ложь": true, "false": true, "no": true, "0": true}
)

// Snapshot reads one snapshot from r using the given field delimiter and
// returns the deduplicated canonical record set. Deduplication is scoped
// to this snapshot only; cross-snapshot dedup happens during
// reconciliation via fingerprints.
func Snapshot(r io.Reader, delimiter rune) ([]types.CanonicalRecord, error) {
	cr := csv.NewReader(r)
	cr.Comma = delimiter
	// FieldsPerRecord left at 0: the reader enforces that every row has
	// as many fields as the header.

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading snapshot header: %w", err)
	}
	index, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var records []types.CanonicalRecord
	seen := make(map[string]struct{})

	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading snapshot row: %w", err)
		}

		expanded, err := Row(row, index)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		for _, rec := range expanded {
			fp := fingerprint.Record(rec)
			if _, dup := seen[fp]; dup {
				continue
			}
			seen[fp] = struct{}{}
			records = append(records, rec)
		}
	}

	return records, nil
}

// columnIndex maps each declared column to its position in the header.
func columnIndex(header []string) (map[string]int, error) {
	if len(header) != len(Columns) {
		return nil, fmt.Errorf("snapshot has %d columns, schema declares %d", len(header), len(Columns))
	}
	pos := make(map[string]int, len(header))
	for i, name := range header {
		pos[strings.ToLower(strings.TrimSpace(name))] = i
	}
	index := make(map[string]int, len(Columns))
	for _, name := range Columns {
		i, ok := pos[name]
		if !ok {
			return nil, fmt.Errorf("snapshot header missing column %q", name)
		}
		index[name] = i
	}
	return index, nil
}

// Row converts one raw row into zero-or-more canonical records: one per
// TNVED code carried in the classification field, or a single record with
// a nil code when the field is empty.
func Row(row []string, index map[string]int) ([]types.CanonicalRecord, error) {
	if len(row) != len(Columns) {
		return nil, fmt.Errorf("row has %d fields, schema declares %d", len(row), len(Columns))
	}

	field := func(name string) *string { return textField(row[index[name]]) }

	base := types.CanonicalRecord{
		OrgName:        field("nameoforg"),
		INN:            field("inn"),
		OGRN:           field("ogrn"),
		ProductName:    field("productname"),
		OKPD2:          field("okpd2"),
		RegNumber:      field("regnumber"),
		RegistryNumber: field("registernumber"),
		Percent:        decimalField(row[index["percent"]]),
		Domestic:       boolField(row[index["domestic"]]),
		Level:          levelField(row[index["level"]]),
		RegisteredAt:   dateField(row[index["regdate"]]),
		ExpiresAt:      dateField(row[index["expirydate"]]),
	}

	codes := splitCodes(row[index["tnved"]])
	if len(codes) == 0 {
		return []types.CanonicalRecord{base}, nil
	}

	records := make([]types.CanonicalRecord, 0, len(codes))
	for _, code := range codes {
		rec := base
		rec.TNVED = types.StringPtr(code)
		records = append(records, rec)
	}
	return records, nil
}

// textField trims the value and collapses sentinels to nil.
func textField(raw string) *string {
	v := strings.TrimSpace(raw)
	if v == "" || v == nullSentinel {
		return nil
	}
	return &v
}

// decimalField parses a strict decimal (dot or comma separator); anything
// else is nil.
func decimalField(raw string) *float64 {
	v := strings.TrimSpace(raw)
	if !decimalRe.MatchString(v) {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64)
	if err != nil {
		return nil
	}
	return &f
}

// boolField accepts the bilingual truthy/falsy vocabulary; anything else
// is nil.
func boolField(raw string) *bool {
	v := strings.ToLower(strings.TrimSpace(raw))
	if truthy[v] {
		b := true
		return &b
	}
	if falsy[v] {
		b := false
		return &b
	}
	return nil
}

// levelField strips non-digit characters and parses the remainder.
func levelField(raw string) *int {
	digits := nonDigitRe.ReplaceAllString(raw, "")
	if digits == "" {
		return nil
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return nil
	}
	return &n
}

// dateField accepts either accepted layout; anything else is nil.
func dateField(raw string) *time.Time {
	v := strings.TrimSpace(raw)
	if v == "" || v == nullSentinel {
		return nil
	}
	for _, layout := range []string{types.DateLayoutRU, types.DateLayout} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t
		}
	}
	return nil
}

// splitCodes splits the semicolon-delimited classification field and
// strips non-digit characters from each code.
func splitCodes(raw string) []string {
	v := strings.TrimSpace(raw)
	if v == "" || v == nullSentinel {
		return nil
	}
	var codes []string
	for _, part := range strings.Split(v, ";") {
		code := nonDigitRe.ReplaceAllString(part, "")
		if code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}

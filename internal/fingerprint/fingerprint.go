// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fingerprint computes content digests used as record identity
// during reconciliation. Both functions are pure: the same field content
// produces the same digest regardless of which snapshot it came from,
// which is what makes cross-snapshot diffing possible.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/registry-engine/pkg/types"
)

// fieldSep separates fields inside the digest input. A control character
// keeps "ab"+"c" and "a"+"bc" from colliding.
const fieldSep = "\x1f"

// Record returns the sha256 hex digest over the record's business fields
// in declared column order, rendering nil as the empty string. Two
// CanonicalRecords are "the same record" iff their digests are equal;
// this is a content identity, not a primary key.
func Record(r types.CanonicalRecord) string {
	fields := []string{
		text(r.OrgName),
		text(r.INN),
		text(r.OGRN),
		text(r.ProductName),
		text(r.OKPD2),
		text(r.TNVED),
		text(r.RegNumber),
		text(r.RegistryNumber),
		float(r.Percent),
		boolean(r.Domestic),
		integer(r.Level),
		date(r.RegisteredAt),
		date(r.ExpiresAt),
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, fieldSep)))
	return hex.EncodeToString(sum[:])
}

// File returns the sha256 hex digest of raw snapshot bytes.
func File(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func text(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func float(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func boolean(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}

func integer(i *int) string {
	if i == nil {
		return ""
	}
	return strconv.Itoa(*i)
}

func date(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(types.DateLayout)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the value types shared across pipeline stages.
package types

import "time"

// DateLayout is the canonical rendering of record dates (storage and
// fingerprinting). Input parsing additionally accepts DateLayoutRU.
const (
	DateLayout   = "2006-01-02"
	DateLayoutRU = "02.01.2006"
)

// CanonicalRecord is one normalized registry row. Every field is either a
// trimmed non-empty value or nil; sentinel values ("-", empty string) are
// collapsed to nil during normalization. A raw row whose classification
// field carries several TNVED codes expands into one CanonicalRecord per
// code, the records otherwise identical.
type CanonicalRecord struct {
	OrgName        *string
	INN            *string
	OGRN           *string
	ProductName    *string
	OKPD2          *string
	TNVED          *string
	RegNumber      *string
	RegistryNumber *string
	Percent        *float64
	Domestic       *bool
	Level          *int
	RegisteredAt   *time.Time
	ExpiresAt      *time.Time
}

// FileIdentity names one snapshot file: its base name, the sha256 of its
// raw bytes, and its size. The (Name, Hash) pair is the idempotency key
// for reconciliation.
type FileIdentity struct {
	Name string
	Hash string
	Size int64
}

// StringPtr returns a pointer to s. Test and construction helper.
func StringPtr(s string) *string { return &s }

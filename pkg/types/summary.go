// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// RunStatus is the terminal status of one pipeline cycle.
type RunStatus string

const (
	RunOK      RunStatus = "ok"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// ReconcileSummary holds the outcome of one reconciliation.
type ReconcileSummary struct {
	// Applied is false when the file was already recorded in the
	// provenance ledger and reconciliation was skipped.
	Applied bool `json:"applied"`

	// Deleted counts entries whose fingerprint vanished from the snapshot.
	Deleted int `json:"deleted"`

	// Candidates counts incoming records absent from the store before
	// the insert ran.
	Candidates int `json:"candidates"`

	// Inserted counts rows actually written; normally equals Candidates.
	Inserted int `json:"inserted"`
}

// Changed reports whether the reconciliation touched the store.
func (s ReconcileSummary) Changed() bool {
	return s.Applied && (s.Deleted > 0 || s.Inserted > 0)
}

// EmbedSummary holds counts from one embedding coordinator run.
type EmbedSummary struct {
	// Selected is the number of rows matched by the selection filters.
	Selected int `json:"selected"`

	// Processed counts rows whose vector was computed and (unless dry-run)
	// persisted.
	Processed int `json:"processed"`

	// Skipped counts rows with no usable search text.
	Skipped int `json:"skipped"`

	// Failed counts rows that errored without aborting the run.
	Failed int `json:"failed"`
}

// HasFailures reports whether any rows failed.
func (s EmbedSummary) HasFailures() bool { return s.Failed > 0 }

// AllFailed reports whether every non-skipped row failed, which turns a
// partial failure into a run failure.
func (s EmbedSummary) AllFailed() bool {
	return s.Failed > 0 && s.Processed == 0
}

// RunSummary is the structured result of one pipeline cycle, emitted as
// JSON for the notification collaborator. Nothing downstream should parse
// log text; everything it needs is here.
type RunSummary struct {
	Status    RunStatus        `json:"status"`
	File      string           `json:"file"`
	FileHash  string           `json:"file_hash,omitempty"`
	FileSize  int64            `json:"file_size,omitempty"`
	Reconcile ReconcileSummary `json:"reconcile"`
	Embedding *EmbedSummary    `json:"embedding,omitempty"`
	Error     string           `json:"error,omitempty"`
}

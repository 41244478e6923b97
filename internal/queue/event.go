// Package queue defines the work items exchanged over the message broker.
package queue

// Kinds of processing a work item asks for.
const (
	KindSighting = "sighting" // new public sighting, recompute notification state
	KindVote     = "vote"     // vote ledger changed, recompute the cached tally
)

// ProcessEvent is published after a committed write leaves a sighting with a
// dirty processing flag. It carries enough for the background processor to
// locate the row without a join back through the submitting request.
type ProcessEvent struct {
	SightingID   string `json:"sighting_id"`
	Server       string `json:"server"`
	MerchantName string `json:"merchant_name"`
	Kind         string `json:"kind"`
	EmittedAt    string `json:"emitted_at"`
}

package core

import (
	"fmt"
	"time"
)

// PaymentRequirement is the server-declared parameter set for one claim run
type PaymentRequirement struct {
	Amount          string `json:"amount"`
	Network         string `json:"network"`
	RelayerContract string `json:"relayerContract"`
}

// Authorization is the typed record signed by the wallet
type Authorization struct {
	Token       string `json:"token"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  int64  `json:"validAfter"`
	ValidBefore int64  `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// Permit is one signed transfer authorization
type Permit struct {
	Authorization Authorization `json:"authorization"`
	Signature     string        `json:"signature"`
}

// Outcome classifies a single permit submission
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeAlreadyClaimed Outcome = "already_claimed"
	OutcomeFailed         Outcome = "failed"
)

// SubmissionResult is the outcome of submitting one permit
type SubmissionResult struct {
	RunID    string        `json:"run_id"`
	Index    int           `json:"index"` // zero-based position in the run
	Total    int           `json:"total"`
	Nonce    string        `json:"nonce"`
	Outcome  Outcome       `json:"outcome"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Err returns the outcome as an error, nil on success
func (r SubmissionResult) Err() error {
	switch r.Outcome {
	case OutcomeSuccess:
		return nil
	case OutcomeAlreadyClaimed:
		return fmt.Errorf("permit %d/%d: %w", r.Index+1, r.Total, ErrAlreadyClaimed)
	default:
		return fmt.Errorf("permit %d/%d: %w: %s", r.Index+1, r.Total, ErrSubmissionFailed, r.Reason)
	}
}

// Summary aggregates the outcomes of a claim run
type Summary struct {
	RunID          string    `json:"run_id"`
	Requested      int       `json:"requested"`
	Success        int       `json:"success"`
	AlreadyClaimed int       `json:"already_claimed"`
	Failed         int       `json:"failed"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Total returns the number of recorded outcomes
func (s Summary) Total() int {
	return s.Success + s.AlreadyClaimed + s.Failed
}

// Record adds one outcome to the summary
func (s *Summary) Record(o Outcome) {
	switch o {
	case OutcomeSuccess:
		s.Success++
	case OutcomeAlreadyClaimed:
		s.AlreadyClaimed++
	default:
		s.Failed++
	}
}

// ClaimRun is the aggregate of one triggered claim cycle
type ClaimRun struct {
	ID          string
	Trigger     Trigger
	Requirement PaymentRequirement
	Permits     []Permit
	StartedAt   time.Time
}

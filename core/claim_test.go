package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSummaryRecord(t *testing.T) {
	var s Summary
	for _, o := range []Outcome{OutcomeSuccess, OutcomeAlreadyClaimed, OutcomeFailed, OutcomeFailed, Outcome("weird")} {
		s.Record(o)
	}

	assert.Equal(t, 1, s.Success)
	assert.Equal(t, 1, s.AlreadyClaimed)
	assert.Equal(t, 3, s.Failed)
	assert.Equal(t, 5, s.Total())
}

func TestSubmissionResultErr(t *testing.T) {
	assert.NoError(t, SubmissionResult{Outcome: OutcomeSuccess}.Err())
	assert.ErrorIs(t, SubmissionResult{Outcome: OutcomeAlreadyClaimed}.Err(), ErrAlreadyClaimed)

	err := SubmissionResult{Index: 1, Total: 3, Outcome: OutcomeFailed, Reason: "rate limited"}.Err()
	assert.ErrorIs(t, err, ErrSubmissionFailed)
	assert.EqualError(t, err, "permit 2/3: permit submission failed: rate limited")
}

func TestCredentialExpired(t *testing.T) {
	now := time.Now()

	assert.False(t, SessionCredential{}.Expired(now))
	assert.False(t, SessionCredential{ExpiresAt: now.Add(time.Minute)}.Expired(now))
	assert.True(t, SessionCredential{ExpiresAt: now}.Expired(now))
}

package core

import "errors"

var (
	ErrCaptchaTimeout                = errors.New("captcha was not solved in time")
	ErrCaptchaRejected               = errors.New("captcha proxy rejected the job")
	ErrAuthFailed                    = errors.New("authentication failed")
	ErrPaymentRequirementUnavailable = errors.New("payment requirement unavailable")
	ErrCredentialRejected            = errors.New("session credential rejected")
	ErrSubmissionFailed              = errors.New("permit submission failed")
	ErrAlreadyClaimed                = errors.New("already claimed")
	ErrWatcherTransient              = errors.New("watcher poll failed")
	ErrClaimInFlight                 = errors.New("claim run already in flight")
	ErrApprovalFailed                = errors.New("token approval failed")
	ErrInvalidAmount                 = errors.New("invalid amount")
	ErrNonceCollision                = errors.New("permit nonce collision")
	ErrNotFound                      = errors.New("not found")
)

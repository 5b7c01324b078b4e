package app

import (
	"errors"

	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/ai"
)

var (
	ErrNotFound     = errors.New("summary not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoCredits means the owner's plan allowance is used up.
	ErrNoCredits   = errors.New("no summaries left on current plan")
	ErrNotExported = errors.New("summary export not available")
	// ErrDurationLimit rejects long videos for free owners.
	ErrDurationLimit    = errors.New("free users can only summarize videos up to 15 minutes long")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrBillingDisabled  = errors.New("billing webhook not configured")

	ErrEmptyContent         = ai.ErrEmptyContent
	ErrUnrecognizedResponse = ai.ErrUnrecognizedResponse
)

// ValidationError is a rejected request field. It matches ErrInvalidInput.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}

// Package validator is the optional second-opinion layer. A verdict is
// advisory only: a rejection suppresses execution by scaling confidence
// down, it never mutates the deterministic signal itself.
package validator

import (
	"context"
	"errors"

	"github.com/web3guy0/quantbot/internal/quantum"
)

// ErrUnavailable marks a validator call that failed or timed out; the caller
// proceeds as if no validator were configured.
var ErrUnavailable = errors.New("validator: unavailable")

// Summary is the structured signal digest sent for review.
type Summary struct {
	Symbol     string         `json:"symbol"`
	Action     quantum.Action `json:"action"`
	Confidence float64        `json:"confidence"`
	Level      int            `json:"level"`
	Regime     quantum.Regime `json:"regime"`
	Reason     string         `json:"reason"`
}

// Verdict is the reviewer's answer.
type Verdict struct {
	Accepted   bool    `json:"accepted"`
	Confidence float64 `json:"confidence"`
	Comment    string  `json:"comment"`
}

// Validator reviews a signal summary.
type Validator interface {
	Validate(ctx context.Context, s Summary) (Verdict, error)
}

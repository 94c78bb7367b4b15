package verify

import (
	"errors"
	"strings"
)

// ErrAlreadyVerified reports that the explorer already holds verified source for the address.
var ErrAlreadyVerified = errors.New("contract source already verified")

// apiResponse is the envelope every Etherscan-compatible endpoint returns.
type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

func (r apiResponse) ok() bool {
	return r.Status == "1"
}

func isAlreadyVerified(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "already verified")
}

func isPending(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "pending in queue") || strings.Contains(lower, "in progress")
}

// RejectedError is returned when the explorer refuses a submission or fails the check.
type RejectedError struct {
	Action string
	Reason string
}

func (e *RejectedError) Error() string {
	return "explorer " + e.Action + " rejected: " + e.Reason
}

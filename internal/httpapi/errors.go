package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"tallybook.io/internal/auth"
	"tallybook.io/internal/billing"
	"tallybook.io/internal/ledger"
	"tallybook.io/internal/obs"
)

type errorRule struct {
	err      error
	status   int
	fallback string
}

// errorRules is checked in order; the first sentinel found in the chain wins.
var errorRules = []errorRule{
	{billing.ErrNoDocument, http.StatusNotFound, "No Document Uploaded"},
	{billing.ErrNotFound, http.StatusNotFound, "Not found"},
	{billing.ErrInvalidInput, http.StatusBadRequest, "Invalid input"},
	{billing.ErrConflict, http.StatusBadRequest, "Already exists"},
	{billing.ErrGeneration, http.StatusBadRequest, "Error generating invoice"},
	{billing.ErrShareFailed, http.StatusBadRequest, "Failed to share invoice"},
	{billing.ErrAlreadyPaid, http.StatusBadRequest, "Invoice already paid"},
	{billing.ErrCancelled, http.StatusBadRequest, "Invoice is cancelled and cannot be paid"},

	{auth.ErrNotFound, http.StatusNotFound, "User not found"},
	{auth.ErrInvalidInput, http.StatusBadRequest, "Invalid input"},
	{auth.ErrConflict, http.StatusBadRequest, "Already exists"},
	{auth.ErrSelfTarget, http.StatusBadRequest, "Operation not allowed on own account"},
	{auth.ErrUnknownEmail, http.StatusForbidden, "Email is not known"},
	{auth.ErrInvalidCredentials, http.StatusForbidden, "Invalid Password"},
	{auth.ErrInactiveUser, http.StatusForbidden, "User is inactive"},
	{auth.ErrForbidden, http.StatusForbidden, "Access forbidden!!!"},

	{ledger.ErrNotFound, http.StatusNotFound, "Not found"},
	{ledger.ErrInvalidAmount, http.StatusBadRequest, "Amount must be greater than zero"},
	{ledger.ErrInvalidRate, http.StatusBadRequest, "Exchange rate must be greater than zero"},
	{ledger.ErrInvalidKind, http.StatusBadRequest, "Type must be payment or expense"},
	{ledger.ErrInvalidAccount, http.StatusBadRequest, "Invalid account id"},
	{ledger.ErrInvalidCurrency, http.StatusBadRequest, "Invalid currency id"},
	{ledger.ErrMissingSource, http.StatusBadRequest, "Source id is required"},
	{ledger.ErrUnbalanced, http.StatusBadRequest, "Unbalanced transaction"},
}

// handleServiceError maps service errors onto HTTP responses. Unknown errors
// are logged and reported as 500 without detail.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		writeError(w, r, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	for _, rule := range errorRules {
		if errors.Is(err, rule.err) {
			writeError(w, r, rule.status, detail(err, rule.err, rule.fallback))
			return
		}
	}
	logFor(r).WithError(err).Error("request failed")
	writeError(w, r, http.StatusInternalServerError, "Internal server error")
}

// detail extracts the user message written after the sentinel, as in
// fmt.Errorf("%w: Invalid client id", ErrInvalidInput).
func detail(err, sentinel error, fallback string) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		if rest := strings.TrimSpace(msg[i+len(prefix):]); rest != "" {
			return rest
		}
	}
	return fallback
}

func logFor(r *http.Request) *logrus.Entry {
	return obs.FromContext(r.Context()).WithField("request_id", RequestIDFromContext(r.Context()))
}

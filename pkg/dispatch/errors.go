package dispatch

import (
	"errors"

	"github.com/cirwel/unitares-govcore/pkg/dialectic"
	"github.com/cirwel/unitares-govcore/pkg/identity"
	"github.com/cirwel/unitares-govcore/pkg/knowledge"
	"github.com/cirwel/unitares-govcore/pkg/lockmgr"
	"github.com/cirwel/unitares-govcore/pkg/store"
)

// mapServiceError translates a handler's internal error into spec.md
// §6.2/§7's closed ErrorKind set, the transport-boundary translator
// SPEC_FULL.md §1.2 calls for. Every package that defines its own sentinel
// errors gets a branch here; anything unrecognized falls through to
// INTERNAL_ERROR rather than an undocumented code. Only the code is
// translated: Invoke still passes err.Error() through as the message.
func mapServiceError(err error) (code, recovery string) {
	switch {
	case errors.Is(err, identity.ErrIdentityInUse):
		return "IDENTITY_IN_USE", ""
	case errors.Is(err, identity.ErrInvalidAPIKey):
		return "AUTH_FAILED", ""
	case errors.Is(err, identity.ErrLabelRequired):
		return "MISSING_PARAMETER", ""

	case errors.Is(err, knowledge.ErrRateLimited):
		return "RATE_LIMITED", "wait for the rate-limit window to reset and retry"
	case errors.Is(err, knowledge.ErrNotAuthor):
		return "AUTH_FAILED", ""
	case errors.Is(err, knowledge.ErrSummaryTooLong),
		errors.Is(err, knowledge.ErrDetailTooLong),
		errors.Is(err, knowledge.ErrTooManyTags),
		errors.Is(err, knowledge.ErrInvalidStatus):
		return "INVALID_PARAMETER", ""

	case errors.Is(err, dialectic.ErrOutOfOrder),
		errors.Is(err, dialectic.ErrSessionTerminal):
		return "INVARIANT_VIOLATED", ""
	case errors.Is(err, dialectic.ErrNoEligibleReviewer):
		return "DEPENDENCY_MISSING", "no eligible reviewer is available right now; retry later"
	case errors.Is(err, dialectic.ErrSelfReviewTierTooLow):
		return "AUTH_FAILED", ""

	case errors.Is(err, lockmgr.ErrLockUnavailable):
		return "LOCK_UNAVAILABLE", "retry shortly; the identity is in use elsewhere"

	case errors.Is(err, store.ErrNotFound):
		return "NOT_FOUND", ""
	case errors.Is(err, store.ErrAlreadyExists):
		return "IDENTITY_EXISTS", ""
	case errors.Is(err, store.ErrConcurrentModification):
		return "INVARIANT_VIOLATED", ""

	default:
		return "INTERNAL_ERROR", ""
	}
}

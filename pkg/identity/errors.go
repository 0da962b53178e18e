package identity

import "errors"

// ErrIdentityInUse is the deliberately opaque error returned when a label
// claim (spec.md §4.4 path 3) targets an identity with an active session
// elsewhere. The message never names the other session or identity — the
// "no candidate lists" security policy.
var ErrIdentityInUse = errors.New("identity already in use")

// ErrInvalidAPIKey is returned when a label-claim's API key re-auth fails.
var ErrInvalidAPIKey = errors.New("invalid api key")

// ErrLabelRequired is returned when path 3/4 is attempted without a label.
var ErrLabelRequired = errors.New("label required")

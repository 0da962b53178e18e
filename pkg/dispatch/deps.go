// Package dispatch implements the tool registry and invocation pipeline of
// spec.md §4.9: deserialize arguments, look up a handler in a static
// registry, resolve identity, acquire a lock when the handler mutates
// state, run the handler, shape the response per response_mode, and always
// release the lock. Handlers do not receive the per-tool timeout and are
// not cancelled when it passes. The registry is a plain map built in a
// constructor (no init(), no reflection at dispatch time) per spec.md
// §9.1's "compile-time registry" requirement.
package dispatch

import (
	"log/slog"
	"time"

	"github.com/cirwel/unitares-govcore/pkg/dialectic"
	"github.com/cirwel/unitares-govcore/pkg/governance"
	"github.com/cirwel/unitares-govcore/pkg/identity"
	"github.com/cirwel/unitares-govcore/pkg/knowledge"
	"github.com/cirwel/unitares-govcore/pkg/lockmgr"
	"github.com/cirwel/unitares-govcore/pkg/monitor"
	"github.com/cirwel/unitares-govcore/pkg/notify"
	"github.com/cirwel/unitares-govcore/pkg/store"
)

// Deps bundles every service the dispatcher wires together. All fields are
// required except Notify, which degrades to a no-op when nil.
type Deps struct {
	Identities  *identity.Resolver
	Locks       *lockmgr.Manager
	Monitor     *monitor.Monitor
	Dialectic   *dialectic.Engine
	Knowledge   knowledge.KnowledgeStore
	IdentityDB  *store.IdentityRepo
	AgentStates *store.AgentStateRepo
	Calibration *store.CalibrationRepo
	Notify      *notify.Service
	Log         *slog.Logger

	BasinThreshold float64
}

// CallContext carries per-invocation identity/session info resolved before
// a handler runs.
type CallContext struct {
	IdentityID   string
	Tier         governance.TrustTier
	ResponseMode string
}

// toolSpec describes one registry entry.
type toolSpec struct {
	name     string
	mutates  bool
	timeout  time.Duration
	requires string // "" (no auth), "identity" (needs resolved identity), "tier2", "tier3"
	handler  func(d *Deps, cc CallContext, args map[string]any) (any, error)
}

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 30 * time.Second
	knowledgeOpTimeout  = 60 * time.Second
)

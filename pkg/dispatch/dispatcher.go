package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cirwel/unitares-govcore/pkg/governance"
	"github.com/cirwel/unitares-govcore/pkg/identity"
)

// Dispatcher holds the compile-time tool registry and the shared services
// every handler closes over.
type Dispatcher struct {
	deps     *Deps
	registry map[string]toolSpec
}

// New builds the registry once, at construction time — no reflection or
// registration happens at dispatch time (spec.md §9.1).
func New(deps *Deps) *Dispatcher {
	d := &Dispatcher{deps: deps}
	d.registry = buildRegistry()
	return d
}

// Invocation is one tool call, as received off the transport.
type Invocation struct {
	ToolName     string
	SessionKey   string
	Arguments    any // map[string]any, or a JSON string (deserialized idempotently)
	ResponseMode string
}

// Invoke runs spec.md §4.9's pipeline: deserialize, look up, resolve
// identity, lock if mutating, run the handler, shape response, unlock.
// The per-tool deadline is not passed to the handler (handlers run on
// context.Background() and are never cancelled); it only decides whether
// a handler error returned after the deadline is reported as TIMEOUT.
func (d *Dispatcher) Invoke(ctx context.Context, inv Invocation) Envelope {
	args, err := normalizeArgs(inv.Arguments)
	if err != nil {
		return fail("INVALID_PARAMETER", err.Error(), "")
	}

	spec, ok := d.registry[inv.ToolName]
	if !ok {
		return fail("NOT_FOUND", fmt.Sprintf("no such tool %q", inv.ToolName), "call list_tools() for the current catalog")
	}

	var cc CallContext
	cc.ResponseMode = inv.ResponseMode

	if spec.requires != "" {
		res, err := d.resolveIdentity(ctx, inv.SessionKey, args)
		if err != nil {
			code, recovery := mapServiceError(err)
			return fail(code, err.Error(), recovery)
		}
		cc.IdentityID = res.IdentityID
		cc.Tier = governance.TrustTier(res.TrustTier)

		if !tierSatisfies(spec.requires, cc.Tier) {
			return fail("AUTH_FAILED", fmt.Sprintf("%s requires %s", inv.ToolName, spec.requires), "")
		}
	}

	var handle interface{ Release(context.Context) error }
	if spec.mutates && cc.IdentityID != "" {
		h, err := d.deps.Locks.Acquire(ctx, cc.IdentityID)
		if err != nil {
			code, recovery := mapServiceError(err)
			return fail(code, err.Error(), recovery)
		}
		handle = h
		defer func() { _ = handle.Release(context.Background()) }()
	}

	timeout := spec.timeout
	if timeout == 0 {
		timeout = defaultReadTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := spec.handler(d.deps, cc, args)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return fail("TIMEOUT", fmt.Sprintf("%s exceeded its %s deadline", inv.ToolName, timeout), "")
		}
		code, recovery := mapServiceError(err)
		return fail(code, err.Error(), recovery)
	}
	return ok(data)
}

// normalizeArgs handles spec.md §4.9 step 2's idempotent deserialization:
// if arguments arrived as a JSON string, parse once; if already a map,
// pass through unchanged.
func normalizeArgs(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case string:
		if v == "" {
			return map[string]any{}, nil
		}
		var out map[string]any
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("parsing arguments: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported arguments type %T", raw)
	}
}

func (d *Dispatcher) resolveIdentity(ctx context.Context, sessionKey string, args map[string]any) (identity.Result, error) {
	req := identity.Request{SessionKey: sessionKey}
	if label, ok := args["name"].(string); ok {
		req.Label = label
	}
	if key, ok := args["api_key"].(string); ok {
		req.APIKey = key
	}
	return d.deps.Identities.Resolve(ctx, req)
}

func tierSatisfies(requirement string, tier governance.TrustTier) bool {
	switch requirement {
	case "identity":
		return true
	case "tier2":
		return tier >= governance.TrustTier2
	case "tier3":
		return tier >= governance.TrustTier3
	default:
		return true
	}
}


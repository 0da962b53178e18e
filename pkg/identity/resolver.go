// Package identity implements the four-path identity resolution described
// in spec.md §4.4: session-cache hit, durable-session hit, label claim, and
// create-new, in that order, with a strict no-candidate-leakage security
// policy on the label-claim path.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/cirwel/unitares-govcore/pkg/store"
)

// Config tunes the resolver's cache and session lifetimes.
type Config struct {
	CacheSize      int
	CacheTTL       time.Duration
	SessionIdleTTL time.Duration
}

// DefaultConfig matches spec.md §4.4 ("TTL 5 min") and §6.4's
// session_idle_timeout_seconds default.
func DefaultConfig() Config {
	return Config{
		CacheSize:      10_000,
		CacheTTL:       5 * time.Minute,
		SessionIdleTTL: time.Hour,
	}
}

// Resolver resolves a (session_key, optional label, optional api_key) tuple
// to an identity_id, per the four-path order.
type Resolver struct {
	identities *store.IdentityRepo
	sessions   *store.SessionRepo
	cfg        Config
	cache      *sessionCache
}

func New(identities *store.IdentityRepo, sessions *store.SessionRepo, cfg Config) *Resolver {
	return &Resolver{
		identities: identities,
		sessions:   sessions,
		cfg:        cfg,
		cache:      newSessionCache(cfg.CacheSize, cfg.CacheTTL),
	}
}

// Request bundles what the dispatcher has available when it needs an
// identity_id: the caller's session key, and — for a claim or a fresh
// onboarding — a display label, an API key for re-auth, and an optional
// parent identity for the lineage supplement.
type Request struct {
	SessionKey       string
	Label            string
	APIKey           string
	ParentIdentityID *string
}

// Result is what the resolver hands back: the identity, and — only on
// fresh creation — the one-time plaintext API key.
type Result struct {
	IdentityID     string
	Label          string
	TrustTier      int
	PlaintextAPIKey string // set only when Path == PathCreated
	Path           Path
}

// Path names which of the four resolution paths produced the result.
type Path string

const (
	PathSessionCache    Path = "session_cache"
	PathDurableSession  Path = "durable_session"
	PathLabelClaim      Path = "label_claim"
	PathCreated         Path = "created"
)

// Resolve runs the four-path resolution in order.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Result, error) {
	now := time.Now()

	if req.SessionKey != "" {
		if id, ok := r.cache.Get(req.SessionKey, now); ok {
			ident, err := r.identities.Get(ctx, id)
			if err == nil {
				return Result{IdentityID: id, Label: ident.Label, TrustTier: ident.TrustTier, Path: PathSessionCache}, nil
			}
		}

		binding, err := r.sessions.Get(ctx, req.SessionKey)
		if err == nil && binding.IsActive && binding.ExpiresAt.After(now) {
			ident, err := r.identities.Get(ctx, binding.IdentityID)
			if err != nil {
				return Result{}, fmt.Errorf("loading bound identity: %w", err)
			}
			r.cache.Put(req.SessionKey, binding.IdentityID, now)
			return Result{IdentityID: binding.IdentityID, Label: ident.Label, TrustTier: ident.TrustTier, Path: PathDurableSession}, nil
		}
	}

	if req.Label != "" {
		return r.claimOrCreate(ctx, req, now)
	}

	return Result{}, ErrLabelRequired
}

// claimOrCreate implements paths 3 and 4: claim an existing label if
// exactly one unclaimed match exists, otherwise mint a fresh identity.
func (r *Resolver) claimOrCreate(ctx context.Context, req Request, now time.Time) (Result, error) {
	candidates, err := r.identities.FindByLabel(ctx, req.Label)
	if err != nil {
		return Result{}, fmt.Errorf("looking up label: %w", err)
	}

	// No-candidate-leakage: more than one match, or a match whose API key
	// doesn't verify, is reported as the same opaque failure a reader
	// cannot distinguish from "this label is active elsewhere".
	if len(candidates) == 1 {
		ident := candidates[0]

		// Active-binding check runs before re-auth: re-auth only gates
		// binding to a currently *inactive* label, so a caller with no (or a
		// wrong) API key must still see "identity already in use" rather
		// than an auth failure when that's the real reason the claim fails.
		active, err := r.sessions.HasActiveBinding(ctx, ident.ID)
		if err != nil {
			return Result{}, fmt.Errorf("checking active binding: %w", err)
		}
		if active {
			return Result{}, ErrIdentityInUse
		}

		if req.APIKey == "" || bcrypt.CompareHashAndPassword(ident.APIKeyHash, []byte(req.APIKey)) != nil {
			return Result{}, ErrInvalidAPIKey
		}

		if req.SessionKey != "" {
			if err := r.bindSession(ctx, req.SessionKey, ident.ID, now); err != nil {
				return Result{}, err
			}
		}
		return Result{IdentityID: ident.ID, Label: ident.Label, TrustTier: ident.TrustTier, Path: PathLabelClaim}, nil
	}
	if len(candidates) > 1 {
		// Ambiguous label match: never surface which identities collided.
		return Result{}, ErrIdentityInUse
	}

	return r.create(ctx, req, now)
}

func (r *Resolver) create(ctx context.Context, req Request, now time.Time) (Result, error) {
	return r.createAtTier(ctx, req, now, 0)
}

// Onboard pre-registers an identity at an operator-assigned trust tier
// (spec.md §4.4's trust tiers are otherwise only ever earned at tier 0 and
// raised later) with no session binding — the path behind cmd/govcore's
// `onboard` subcommand for issuing credentials to a known, trusted agent
// ahead of its first call.
func (r *Resolver) Onboard(ctx context.Context, label string, tier int) (Result, error) {
	return r.createAtTier(ctx, Request{Label: label}, time.Now(), tier)
}

func (r *Resolver) createAtTier(ctx context.Context, req Request, now time.Time, tier int) (Result, error) {
	plaintext, err := generateAPIKey()
	if err != nil {
		return Result{}, fmt.Errorf("generating api key: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return Result{}, fmt.Errorf("hashing api key: %w", err)
	}

	id := uuid.NewString()
	label := req.Label
	if label == "" {
		label = defaultLabel(now)
	}

	ident := &store.Identity{
		ID:               id,
		Label:            label,
		APIKeyHash:       hash,
		ParentIdentityID: req.ParentIdentityID,
		CreatedAt:        now,
		Status:           "active",
		Tags:             nil,
		TrustTier:        tier,
	}
	if err := r.identities.Create(ctx, ident); err != nil {
		return Result{}, fmt.Errorf("creating identity: %w", err)
	}

	if req.SessionKey != "" {
		if err := r.bindSession(ctx, req.SessionKey, id, now); err != nil {
			return Result{}, err
		}
	}

	return Result{
		IdentityID:      id,
		Label:           label,
		TrustTier:       tier,
		PlaintextAPIKey: plaintext,
		Path:            PathCreated,
	}, nil
}

func (r *Resolver) bindSession(ctx context.Context, sessionKey, identityID string, now time.Time) error {
	binding := &store.SessionBinding{
		SessionKey: sessionKey,
		IdentityID: identityID,
		LastActive: now,
		ExpiresAt:  now.Add(r.cfg.SessionIdleTTL),
	}
	if err := r.sessions.Bind(ctx, binding); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return ErrIdentityInUse
		}
		return fmt.Errorf("binding session: %w", err)
	}
	r.cache.Put(sessionKey, identityID, now)
	return nil
}

// Touch refreshes a session's idle timer on each authenticated request.
func (r *Resolver) Touch(ctx context.Context, sessionKey string) error {
	now := time.Now()
	return r.sessions.Touch(ctx, sessionKey, now, now.Add(r.cfg.SessionIdleTTL))
}

// End logs a session out explicitly, invalidating both the cache and the
// durable binding.
func (r *Resolver) End(ctx context.Context, sessionKey string) error {
	r.cache.Invalidate(sessionKey)
	return r.sessions.End(ctx, sessionKey)
}

func defaultLabel(now time.Time) string {
	return fmt.Sprintf("agent-%s", now.UTC().Format("20060102-150405"))
}

func generateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

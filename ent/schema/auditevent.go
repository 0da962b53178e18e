package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// AuditEvent holds the schema definition for the append-only audit trail
// (spec.md §6.3's "audit_events" collection). This doubles as the
// append-only sink the distilled spec treats as an external collaborator —
// see DESIGN.md / SPEC_FULL.md §5.
type AuditEvent struct {
	ent.Schema
}

func (AuditEvent) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("event_id").
			Unique().
			Immutable(),
		field.String("identity_id").
			Optional().
			Nillable(),
		field.String("event_type"),
		field.JSON("payload", map[string]interface{}{}).
			Optional(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

func (AuditEvent) Edges() []ent.Edge { return nil }

func (AuditEvent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("identity_id"),
		index.Fields("event_type"),
		index.Fields("created_at"),
	}
}

func (AuditEvent) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}

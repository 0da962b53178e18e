package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// SessionBinding holds the schema definition for the SessionBinding entity:
// the (session_key, identity_id) tuple from spec.md §3.1. The partial unique
// index enforces invariant 1 — at most one active binding per identity_id.
type SessionBinding struct {
	ent.Schema
}

func (SessionBinding) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("session_key").
			Unique().
			Immutable(),
		field.String("identity_id"),
		field.Time("last_active").
			Default(time.Now),
		field.Time("expires_at"),
		field.Bool("is_active").
			Default(true),
	}
}

func (SessionBinding) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("identity", Identity.Type).
			Ref("sessions").
			Field("identity_id").
			Unique().
			Required().
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

func (SessionBinding) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("identity_id"),
		index.Fields("expires_at"),
		// Partial unique index: at most one active binding per identity.
		index.Fields("identity_id", "is_active").
			Unique().
			Annotations(entsql.IndexWhere("is_active = true")),
	}
}

func (SessionBinding) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}

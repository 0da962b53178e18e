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

// Identity holds the schema definition for the Identity entity: the
// durable record behind an agent's identity_id (spec.md §3.1).
type Identity struct {
	ent.Schema
}

// Fields of the Identity.
func (Identity) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("identity_id").
			Unique().
			Immutable(),
		field.String("label").
			Comment("Human-chosen display name"),
		field.Bytes("api_key_hash").
			Comment("Hash of the one-time-revealed API key; never stored in cleartext"),
		field.String("parent_identity_id").
			Optional().
			Nillable().
			Comment("Lineage: prior identity this one was forked/restarted from"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Enum("status").
			Values("active", "paused", "archived").
			Default("active"),
		field.JSON("tags", []string{}).
			Optional(),
		field.Int("trust_tier").
			Default(0).
			Comment("0-3, behavioral-consistency rating"),
	}
}

// Edges of the Identity.
func (Identity) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("sessions", SessionBinding.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("discoveries", Discovery.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Identity.
func (Identity) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("label"),
		index.Fields("status"),
		index.Fields("parent_identity_id"),
	}
}

func (Identity) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}

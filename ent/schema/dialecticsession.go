package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// DialecticSession holds the schema definition for a peer-review session
// (spec.md §3.1's "Dialectic session").
type DialecticSession struct {
	ent.Schema
}

func (DialecticSession) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("session_id").
			Unique().
			Immutable(),
		field.String("paused_identity_id"),
		field.String("reviewer_identity_id").
			Optional().
			Nillable(),
		field.Enum("phase").
			Values("thesis", "antithesis", "synthesis", "resolved", "failed").
			Default("thesis"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
		field.String("topic"),
		field.JSON("transcript", []map[string]interface{}{}).
			Optional().
			Comment("Ordered list of thesis/antithesis/synthesis messages"),
		field.Int("max_synthesis_rounds").
			Default(5),
		field.Int("synthesis_round").
			Default(0),
		field.String("resolution").
			Optional().
			Nillable(),
		field.String("mode").
			Default("auto").
			Comment("auto | self | llm"),
	}
}

func (DialecticSession) Edges() []ent.Edge {
	return nil
}

func (DialecticSession) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("paused_identity_id"),
		index.Fields("reviewer_identity_id"),
		index.Fields("phase"),
		index.Fields("updated_at"),
	}
}

func (DialecticSession) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}

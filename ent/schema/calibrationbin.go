package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// CalibrationBin holds the schema definition for one confidence-histogram
// bucket, global or per-agent (spec.md §4.8). Persisted as simple rows
// rather than a JSON blob so bins can be updated with single-row UPDATEs
// under concurrent checkins.
type CalibrationBin struct {
	ent.Schema
}

func (CalibrationBin) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable().
			Comment("scope:bin_index, scope is 'global' or an identity_id"),
		field.String("scope"),
		field.Int("bin_index"),
		field.Int("count").
			Default(0),
		field.Int("predicted_correct").
			Default(0),
		field.Int("actual_correct").
			Default(0),
	}
}

func (CalibrationBin) Edges() []ent.Edge { return nil }

func (CalibrationBin) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("scope", "bin_index").
			Unique(),
	}
}

func (CalibrationBin) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}

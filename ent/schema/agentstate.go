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

// AgentState holds the schema definition for the latest agent state
// snapshot (spec.md §3.1's "Agent state snapshot"). History is kept in the
// separate AgentStateHistory entity as a bounded ring buffer (see
// pkg/store for the trim-on-write bookkeeping).
type AgentState struct {
	ent.Schema
}

func (AgentState) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("identity_id").
			Unique().
			Immutable(),
		field.Float("e"),
		field.Float("i"),
		field.Float("s"),
		field.Float("v"),
		field.Float("theta_c1"),
		field.Float("theta_eta1"),
		field.Float("controller_integral").
			Default(0),
		field.Time("recorded_at").
			Default(time.Now),
		field.Int("update_count").
			Default(0),
		field.String("last_verdict").
			Optional().
			Nillable(),
		field.Enum("phase").
			Values("exploration", "integration").
			Default("integration"),
		field.Int("consecutive_low_basin").
			Default(0),
		field.Int("consecutive_failures").
			Default(0),
	}
}

func (AgentState) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("history", AgentStateHistory.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

func (AgentState) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("recorded_at"),
	}
}

func (AgentState) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}

// AgentStateHistory holds bounded per-agent history rows (V, coherence,
// risk, decision — spec.md §4.2's bounded history, default cap 1000).
type AgentStateHistory struct {
	ent.Schema
}

func (AgentStateHistory) Fields() []ent.Field {
	return []ent.Field{
		field.Int("seq").
			Comment("Monotonic sequence within the agent, used to trim the oldest rows"),
		field.String("identity_id"),
		field.Time("recorded_at").
			Default(time.Now),
		field.Float("v"),
		field.Float("coherence"),
		field.Float("risk"),
		field.String("decision"),
	}
}

func (AgentStateHistory) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("state", AgentState.Type).
			Ref("history").
			Field("identity_id").
			Unique().
			Required().
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

func (AgentStateHistory) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("identity_id", "seq").
			Unique(),
	}
}

func (AgentStateHistory) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}

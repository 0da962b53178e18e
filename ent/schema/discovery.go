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

// Discovery holds the schema definition for a knowledge-graph node
// (spec.md §3.1's "Discovery record").
type Discovery struct {
	ent.Schema
}

func (Discovery) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("discovery_id").
			Unique().
			Immutable(),
		field.String("author_identity_id"),
		field.String("author_label_snapshot").
			Comment("Label at time of store, shown if the author is later archived"),
		field.Enum("type").
			Values("note", "insight", "bug_found", "improvement", "analysis", "pattern"),
		field.String("summary"),
		field.Text("detail").
			Optional(),
		field.JSON("tags", []string{}).
			Optional(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Enum("status").
			Values("open", "resolved", "archived").
			Default("open"),
		field.JSON("embedding_vector", []float64{}).
			Optional().
			Comment("Opaque to the core; stored as supplied, never computed here"),
		field.Int("inbound_edge_count").
			Default(0),
	}
}

func (Discovery) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("author", Identity.Type).
			Ref("discoveries").
			Field("author_identity_id").
			Unique().
			Required().
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("outbound_edges", KnowledgeEdge.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

func (Discovery) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("author_identity_id"),
		index.Fields("status"),
		index.Fields("type"),
		index.Fields("created_at"),
	}
}

func (Discovery) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}

// KnowledgeEdge holds the schema definition for a typed, directed edge
// between two discoveries (spec.md §3.1's "Knowledge-graph edge").
type KnowledgeEdge struct {
	ent.Schema
}

func (KnowledgeEdge) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("edge_id").
			Unique().
			Immutable(),
		field.String("from_discovery_id"),
		field.String("to_discovery_id"),
		field.Enum("edge_type").
			Values("RELATED_TO", "RESPONDS_TO", "TAGGED", "EVOLVED_INTO", "REFERENCES"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

func (KnowledgeEdge) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("from", Discovery.Type).
			Ref("outbound_edges").
			Field("from_discovery_id").
			Unique().
			Required().
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

func (KnowledgeEdge) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("from_discovery_id"),
		index.Fields("to_discovery_id"),
		// No self-loops: enforced at the application layer (pkg/store), since
		// Ent schema annotations cannot express a cross-column check here.
	}
}

func (KnowledgeEdge) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}

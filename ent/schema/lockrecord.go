package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// LockRecord holds the schema definition for lock bookkeeping metadata
// (spec.md §6.3's "locks" collection: holder_pid, acquired_at). Mutual
// exclusion itself is enforced by a Postgres advisory lock keyed on the
// same identity_id (see pkg/lockmgr); this table exists so the sweeper can
// read holder_pid/acquired_at without needing pg_locks introspection
// privileges, mirroring the teacher's orphan-detection approach of reading
// application-level bookkeeping columns rather than engine internals.
type LockRecord struct {
	ent.Schema
}

func (LockRecord) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("identity_id").
			Unique().
			Immutable(),
		field.String("holder_pid"),
		field.String("holder_token").
			Comment("Opaque token identifying the specific acquisition, for safe release"),
		field.Time("acquired_at").
			Default(time.Now),
	}
}

func (LockRecord) Edges() []ent.Edge { return nil }

func (LockRecord) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("acquired_at"),
	}
}

func (LockRecord) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}

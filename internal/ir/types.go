package ir

// RelationKind is the cardinality of an entity relation.
type RelationKind string

const (
	HasMany   RelationKind = "has_many"
	HasOne    RelationKind = "has_one"
	BelongsTo RelationKind = "belongs_to"
)

// ValidRelationKinds defines allowed relation kinds.
var ValidRelationKinds = map[RelationKind]bool{
	HasMany:   true,
	HasOne:    true,
	BelongsTo: true,
}

// DefaultPrimaryKey is used when an entity does not name its key column.
const DefaultPrimaryKey = "id"

// EntitySpec describes a backing entity (one table).
type EntitySpec struct {
	Name       string         `json:"name"`        // "Post"
	Table      string         `json:"table"`       // "posts"
	PrimaryKey string         `json:"primary_key"` // defaults to "id"
	Columns    []ColumnSpec   `json:"columns"`     // declaration order
	Queries    []QueryAttr    `json:"queries,omitempty"`
	Relations  []RelationSpec `json:"relations,omitempty"`
}

// ColumnSpec is a raw backing column.
type ColumnSpec struct {
	Name string `json:"name"`
	Type string `json:"type"` // "int", "string", "bool"
}

// QueryAttr is a derived attribute computed by the query layer.
// Expr is a SQL expression evaluated against the entity table.
type QueryAttr struct {
	Name string `json:"name"`
	Expr string `json:"expr"`
}

// RelationSpec links an entity to another entity.
//
// ForeignKey always names a column: on the target table for has_many and
// has_one, on the owning table for belongs_to.
type RelationSpec struct {
	Name       string       `json:"name"`
	Kind       RelationKind `json:"kind"`
	Target     string       `json:"target"` // entity name
	ForeignKey string       `json:"foreign_key"`
}

// Key returns the primary key column name.
func (e EntitySpec) Key() string {
	if e.PrimaryKey == "" {
		return DefaultPrimaryKey
	}
	return e.PrimaryKey
}

// ColumnNames returns the backing column names in declaration order.
func (e EntitySpec) ColumnNames() []string {
	names := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		names[i] = c.Name
	}
	return names
}

// HasColumn reports whether name is a raw backing column.
func (e EntitySpec) HasColumn(name string) bool {
	for _, c := range e.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Query returns the derived attribute with the given name.
func (e EntitySpec) Query(name string) (QueryAttr, bool) {
	for _, q := range e.Queries {
		if q.Name == name {
			return q, true
		}
	}
	return QueryAttr{}, false
}

// Relation returns the relation with the given name.
func (e EntitySpec) Relation(name string) (RelationSpec, bool) {
	for _, r := range e.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return RelationSpec{}, false
}

// EmbedMode controls how a serializer renders an association.
type EmbedMode string

const (
	// EmbedObjects renders the nested records (default).
	EmbedObjects EmbedMode = "objects"
	// EmbedIDs renders only the target keys and never materializes the
	// target records.
	EmbedIDs EmbedMode = "ids"
)

// SerializerSpec is the declarative surface of one serializer.
type SerializerSpec struct {
	Name         string            `json:"name"`
	Entity       string            `json:"entity"`
	Inherits     string            `json:"inherits,omitempty"`
	Attributes   []string          `json:"attributes"`
	Associations []AssociationSpec `json:"associations,omitempty"`
	Loaders      LoadersSpec       `json:"loaders"`
}

// AssociationSpec declares one association on a serializer.
type AssociationSpec struct {
	Name       string    `json:"name"`
	Relation   string    `json:"relation,omitempty"`   // explicit mapping when renamed
	Serializer string    `json:"serializer,omitempty"` // per-association override
	Embed      EmbedMode `json:"embed,omitempty"`
}

// RelationName returns the entity relation the association reads.
func (a AssociationSpec) RelationName() string {
	if a.Relation != "" {
		return a.Relation
	}
	return a.Name
}

// LoadersSpec holds the select/skip/include directives of a serializer.
//
// Includes keeps the raw directive shapes (string, map, list) so that the
// normalizer can reject unsupported shapes at declaration time.
type LoadersSpec struct {
	Select     []string `json:"select,omitempty"`
	SkipSelect []string `json:"skip_select,omitempty"`
	Includes   []any    `json:"includes,omitempty"`
}

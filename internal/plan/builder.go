package plan

import (
	"fmt"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/roach88/loadplan/internal/ir"
	"github.com/roach88/loadplan/internal/schema"
	"github.com/roach88/loadplan/internal/selecttree"
	"github.com/roach88/loadplan/internal/serializer"
)

// DefaultMaxDepth is the association depth at which Build gives up.
const DefaultMaxDepth = 64

// ErrNoSerializer is returned by BuildWith when neither an override nor a
// default serializer exists for the entity.
var ErrNoSerializer = errors.New("no serializer for entity")

// Builder turns serializer descriptors into select trees.
type Builder struct {
	registry *serializer.Registry
	catalog  *schema.Catalog
	logger   *zap.Logger
	maxDepth int
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger. Defaults to zap.L().
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithMaxDepth bounds the association depth. Values below 1 are ignored.
func WithMaxDepth(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.maxDepth = n
		}
	}
}

// NewBuilder returns a Builder over the registry's declarations.
func NewBuilder(registry *serializer.Registry, opts ...Option) *Builder {
	b := &Builder{
		registry: registry,
		catalog:  registry.Catalog(),
		logger:   zap.L(),
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// MaxDepth returns the configured depth limit.
func (b *Builder) MaxDepth() int {
	return b.maxDepth
}

// Build returns the select tree for the named serializer.
func (b *Builder) Build(name string) (*ir.SelectNode, error) {
	node, err := b.build(name, "", nil)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("plan built",
		zap.String("serializer", name),
		zap.String("entity", node.Entity),
		zap.Int("levels", countLevels(node)))
	return node, nil
}

// BuildWith returns the select tree for entity using override when given,
// else the entity's default serializer.
func (b *Builder) BuildWith(entity, override string) (*ir.SelectNode, error) {
	name, err := b.Effective(entity, override)
	if err != nil {
		return nil, err
	}
	return b.Build(name)
}

// Effective resolves the serializer used for entity.
func (b *Builder) Effective(entity, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	name, ok := b.registry.DefaultFor(entity)
	if !ok {
		return "", errors.WithHint(
			errors.Mark(errors.Newf("entity %s has no serializer %s", entity, name), ErrNoSerializer),
			"declare the default serializer or pass one explicitly")
	}
	return name, nil
}

func (b *Builder) build(name, relation string, path []string) (*ir.SelectNode, error) {
	desc, err := b.registry.Describe(name)
	if err != nil {
		return nil, err
	}

	if slices.Contains(path, name) {
		return nil, ir.NewRecursionError(desc.Entity.Name, append(slices.Clone(path), name))
	}
	if len(path) >= b.maxDepth {
		return nil, depthExceeded(desc.Entity.Name, append(slices.Clone(path), name), b.maxDepth)
	}
	path = append(slices.Clip(path), name)

	node := levelNode(desc)
	node.Relation = relation

	for _, a := range desc.Associations {
		var child *ir.SelectNode
		if a.IDsOnly() {
			child = &ir.SelectNode{
				Entity:   a.Target.Name,
				Relation: a.Relation.Name,
				Mode:     ir.ModeExplicit,
				Columns:  []string{a.Target.Key()},
				Embed:    ir.EmbedIDs,
			}
		} else {
			child, err = b.build(a.Serializer, a.Relation.Name, path)
			if err != nil {
				return nil, err
			}
		}
		if node.Includes == nil {
			node.Includes = map[string]*ir.SelectNode{}
		}
		node.Includes[a.Name] = child
	}

	if len(desc.Includes) > 0 {
		directives, err := b.resolveDirectives(desc, desc.Entity, desc.Includes)
		if err != nil {
			return nil, err
		}
		node.Includes = selecttree.MergeTrees(node.Includes, directives)
	}
	return node, nil
}

// levelNode selects the columns of one serializer level.
func levelNode(desc *serializer.Descriptor) *ir.SelectNode {
	node := &ir.SelectNode{
		Entity:  desc.Entity.Name,
		Mode:    ir.ModeWildcard,
		Derived: slices.Clone(desc.Derived),
	}
	if desc.HasSkipList() {
		skip := slices.Clone(desc.SkipSelect)
		slices.Sort(skip)
		node.Mode = ir.ModeExplicit
		node.Skip = skip
		node.Columns = lo.Without(desc.Entity.ColumnNames(), skip...)
		// loaders.select names columns explicitly, even skipped ones.
		for _, col := range desc.SelectColumns {
			if !slices.Contains(node.Columns, col) {
				node.Columns = append(node.Columns, col)
			}
		}
	}
	if len(node.Derived) == 0 {
		node.Derived = nil
	}
	return node
}

// resolveDirectives fills in entity and relation on normalized include
// directives. A directive naming a serializer association follows that
// association's relation mapping.
func (b *Builder) resolveDirectives(desc *serializer.Descriptor, entity ir.EntitySpec, directives map[string]*ir.SelectNode) (map[string]*ir.SelectNode, error) {
	out := make(map[string]*ir.SelectNode, len(directives))
	for name, directive := range directives {
		relationName := name
		if desc != nil {
			if a, ok := lo.Find(desc.Associations, func(a serializer.AssociationDescriptor) bool {
				return a.Name == name
			}); ok {
				relationName = a.Relation.Name
			}
		}

		rel, err := b.catalog.Relation(entity.Name, relationName)
		if err != nil {
			return nil, errors.Wrapf(err, "include %s on %s", name, entity.Name)
		}
		target, _ := b.catalog.Entity(rel.Target)

		node := selecttree.Clone(directive)
		node.Entity = target.Name
		node.Relation = rel.Name
		node.Embed = ir.EmbedObjects
		if len(directive.Includes) > 0 {
			node.Includes, err = b.resolveDirectives(nil, target, directive.Includes)
			if err != nil {
				return nil, err
			}
		}
		out[name] = node
	}
	return out, nil
}

func depthExceeded(entity string, path []string, limit int) error {
	return errors.WithHint(&ir.ConfigError{
		Code:    ir.ErrCodeRecursion,
		Subject: entity,
		Message: fmt.Sprintf("association depth exceeds %d at %s", limit, entity),
		Path:    path,
	}, "check the serializer associations for an unbounded chain")
}

func countLevels(n *ir.SelectNode) int {
	count := 1
	for _, child := range n.Includes {
		count += countLevels(child)
	}
	return count
}

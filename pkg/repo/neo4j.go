package repo

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// runner is the minimal interface needed from a neo4j session.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) error
	Close(ctx context.Context) error
}

// Neo4jRepo is a generic Neo4j-backed repository keyed by one property.
type Neo4jRepo[T any, ID comparable] struct {
	driver     neo4j.DriverWithContext
	label      string
	idKey      string
	database   string
	toMap      func(T) map[string]any
	newSession func(ctx context.Context) runner // for testing
}

// Neo4jOption configures a Neo4jRepo.
type Neo4jOption[T any, ID comparable] func(*Neo4jRepo[T, ID])

// WithIDKey sets the property name used as the ID (default "id").
func WithIDKey[T any, ID comparable](key string) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.idKey = key }
}

// WithDatabase selects a database other than the server default. An empty
// name keeps the default.
func WithDatabase[T any, ID comparable](name string) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.database = name }
}

// NewNeo4jRepo creates a new Neo4j-backed repository. toMap must include
// the ID property.
func NewNeo4jRepo[T any, ID comparable](
	driver neo4j.DriverWithContext,
	label string,
	toMap func(T) map[string]any,
	opts ...Neo4jOption[T, ID],
) *Neo4jRepo[T, ID] {
	r := &Neo4jRepo[T, ID]{
		driver: driver,
		label:  label,
		idKey:  "id",
		toMap:  toMap,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

var _ Repository[any, string] = (*Neo4jRepo[any, string])(nil)

// sessionRunner adapts neo4j.SessionWithContext to runner. Results are
// discarded; closing the session consumes them.
type sessionRunner struct {
	sess neo4j.SessionWithContext
}

func (a *sessionRunner) Run(ctx context.Context, cypher string, params map[string]any) error {
	_, err := a.sess.Run(ctx, cypher, params)
	return err
}

func (a *sessionRunner) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

func (r *Neo4jRepo[T, ID]) session(ctx context.Context) runner {
	if r.newSession != nil {
		return r.newSession(ctx)
	}
	return &sessionRunner{sess: r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: r.database,
	})}
}

// EnsureConstraint creates a uniqueness constraint on the ID property.
func (r *Neo4jRepo[T, ID]) EnsureConstraint(ctx context.Context) error {
	sess := r.session(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("CREATE CONSTRAINT %s_%s_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
		r.label, r.idKey, r.label, r.idKey)
	return sess.Run(ctx, cypher, nil)
}

func (r *Neo4jRepo[T, ID]) Upsert(ctx context.Context, entity T) error {
	sess := r.session(ctx)
	defer sess.Close(ctx)

	props := r.toMap(entity)
	id, ok := props[r.idKey]
	if !ok {
		return fmt.Errorf("%s: missing %s property", r.label, r.idKey)
	}
	cypher := fmt.Sprintf("MERGE (n:%s {%s: $id}) ON CREATE SET n += $props", r.label, r.idKey)
	return sess.Run(ctx, cypher, map[string]any{"id": id, "props": props})
}

func (r *Neo4jRepo[T, ID]) Relate(ctx context.Context, id ID, rel, label, key string, value any) error {
	sess := r.session(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf(
		"MATCH (n:%s {%s: $id}) MERGE (m:%s {%s: $value}) MERGE (n)-[:%s]->(m)",
		r.label, r.idKey, label, key, rel)
	return sess.Run(ctx, cypher, map[string]any{"id": id, "value": value})
}

// Package repo defines a generic keyed repository and its Neo4j backing.
package repo

import "context"

// Repository stores entities addressed by a natural key. Upsert creates the
// entity when the key is new and leaves an existing one untouched. Relate
// links the entity with key id to a node merged on (label {key: value}).
type Repository[T any, ID comparable] interface {
	Upsert(ctx context.Context, entity T) error
	Relate(ctx context.Context, id ID, rel, label, key string, value any) error
}

package store

import "context"

// Store is the durable local cache shared by the repositories. Records are
// addressed by (collection, key). Reads of absent records report ok=false
// with a nil error; "not found" is never an error condition.
type Store interface {
	Get(ctx context.Context, collection, key string) ([]byte, bool, error)
	Put(ctx context.Context, collection, key string, body []byte) error
	Delete(ctx context.Context, collection, key string) error
	ClearAll(ctx context.Context, collection string) error
	// ListAll returns every record body in the collection in insertion order.
	ListAll(ctx context.Context, collection string) ([][]byte, error)
}

package history

import "context"

// Store keeps one authoritative record per (EntityID, State) key.
//
// Upsert is a timestamp-compared merge, not a blind overwrite: replaying an
// older record after a newer one is a no-op. SupersedeAndInsert is the
// compound operation behind reset/restore flows; implementations use
// sequential writes with a compensating rollback, and must never leave two
// current records for one entity.
type Store interface {
	Upsert(ctx context.Context, record *Record) error
	QueryByEntity(ctx context.Context, entityID string) ([]*Record, error)
	SupersedeAndInsert(ctx context.Context, outgoing, incoming *Record) error
	Delete(ctx context.Context, entityID string, state State) error
	List(ctx context.Context) ([]*Record, error)
}

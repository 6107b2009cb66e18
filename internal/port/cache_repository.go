package port

import "context"

type CacheRepository interface {
	// ClaimIdempotencyKey reserves key for a new placement. If the key is
	// already bound to an order, it returns that order id and claimed=false.
	// If another placement holds it, it returns an empty id and claimed=false.
	ClaimIdempotencyKey(ctx context.Context, key string) (orderID string, claimed bool, err error)

	// CompleteIdempotencyKey binds a claimed key to the order it produced
	CompleteIdempotencyKey(ctx context.Context, key, orderID string) error

	// ReleaseIdempotencyKey frees a claimed key after a failed placement
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

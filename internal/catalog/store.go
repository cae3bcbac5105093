package catalog

import (
	"context"
	"errors"
)

var ErrDuplicateID = errors.New("product id already exists")

// Store owns the product collection. Implementations keep insertion order
// and serialize their own mutations.
type Store interface {
	Ping(ctx context.Context) error
	List(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id string) (Product, bool, error)
	Add(ctx context.Context, p Product) error
	Update(ctx context.Context, id string, patch Patch) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

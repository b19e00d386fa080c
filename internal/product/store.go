package product

import "context"

type Product struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// Draft is the creation payload; the store assigns the id.
type Draft struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

func (d Draft) withID(id int64) Product {
	return Product{ID: id, Name: d.Name, Description: d.Description, Price: d.Price}
}

type Replacement struct {
	Old Product `json:"old"`
	New Product `json:"new"`
}

// Store is an ordered product collection. A false bool on Get, Replace and
// Delete means no record carries the id; errors are reserved for backend
// failures.
type Store interface {
	List(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id int64) (Product, bool, error)
	Create(ctx context.Context, d Draft) (Product, error)
	Replace(ctx context.Context, id int64, p Product) (Replacement, bool, error)
	Delete(ctx context.Context, id int64) (Product, bool, error)
	Ping(ctx context.Context) error
}

var seed = []Draft{
	{Name: "Tenis Nike Air", Description: "Calçados", Price: 199.99},
	{Name: "Iphone", Description: "Celulares", Price: 3928.99},
	{Name: "Notebook", Description: "Eletrônicos", Price: 4928.97},
}

// Seed appends the three demo products through s.Create, so they get ids
// 1..3 on an empty store.
func Seed(ctx context.Context, s Store) error {
	for _, d := range seed {
		if _, err := s.Create(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// SeedIfEmpty seeds s only when it holds no products, so a durable backend
// is seeded once.
func SeedIfEmpty(ctx context.Context, s Store) (bool, error) {
	existing, err := s.List(ctx)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}
	return true, Seed(ctx, s)
}

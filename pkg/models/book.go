package models

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	Title     string    `bun:",notnull" json:"title"`
	Author    string    `bun:",notnull" json:"author"`
	ISBN      string    `bun:"isbn,notnull,unique" json:"isbn"`
	Price     Price     `bun:",notnull" json:"price"`
	Quantity  int       `bun:",notnull" json:"quantity"`
	CreatedAt time.Time `bun:",notnull" json:"created_at"`
	UpdatedAt time.Time `bun:",notnull" json:"updated_at"`
}

var _ bun.AfterScanRowHook = (*Book)(nil)

// AfterScanRow normalizes the price scale. SQLite hands numeric columns back
// as floats or integers, so 10.00 comes back as 10.
func (b *Book) AfterScanRow(_ context.Context) error {
	b.Price = Price{b.Price.Round(PriceDecimalPlaces)}
	return nil
}

package books

import (
	"encoding/json"

	"github.com/shishobooks/bookstore/pkg/models"
)

// ReadOnlyFields lets clients send back a record they retrieved. The values
// are accepted and dropped.
type ReadOnlyFields struct {
	ID        json.RawMessage `json:"id,omitempty" form:"-"`
	CreatedAt json.RawMessage `json:"created_at,omitempty" form:"-"`
	UpdatedAt json.RawMessage `json:"updated_at,omitempty" form:"-"`
}

type ListBooksQuery struct {
	Search   *string `query:"search" json:"search,omitempty" mod:"trim" validate:"omitnil,max=100"`
	Author   *string `query:"author" json:"author,omitempty" mod:"trim" validate:"omitnil,max=100"`
	ISBN     *string `query:"isbn" json:"isbn,omitempty" mod:"trim" validate:"omitnil,max=13"`
	Ordering string  `query:"ordering" json:"ordering,omitempty" default:"id" validate:"oneof=id -id title -title author -author price -price quantity -quantity created_at -created_at updated_at -updated_at"`
	Limit    *int    `query:"limit" json:"limit,omitempty" validate:"omitnil,min=1,max=100"`
	Offset   *int    `query:"offset" json:"offset,omitempty" validate:"omitnil,min=0"`
}

// CreateBookPayload is the full field set for a new book. Quantity falls back
// to 0 when omitted.
type CreateBookPayload struct {
	ReadOnlyFields
	Title    string        `json:"title" form:"title" mod:"trim" validate:"required,max=200"`
	Author   string        `json:"author" form:"author" mod:"trim" validate:"required,max=100"`
	ISBN     string        `json:"isbn" form:"isbn" mod:"trim" validate:"required,max=13"`
	Price    *models.Price `json:"price" form:"price" validate:"required,decimal_gte=0,max_digits=6,max_whole_digits=4,decimal_places=2"`
	Quantity *int          `json:"quantity" form:"quantity"`
}

// ReplaceBookPayload is the full field set for PUT. An omitted quantity keeps
// the stored value.
type ReplaceBookPayload CreateBookPayload

type PatchBookPayload struct {
	ReadOnlyFields
	Title    *string       `json:"title,omitempty" form:"title" mod:"trim" validate:"omitnil,min=1,max=200"`
	Author   *string       `json:"author,omitempty" form:"author" mod:"trim" validate:"omitnil,min=1,max=100"`
	ISBN     *string       `json:"isbn,omitempty" form:"isbn" mod:"trim" validate:"omitnil,min=1,max=13"`
	Price    *models.Price `json:"price,omitempty" form:"price" validate:"omitnil,decimal_gte=0,max_digits=6,max_whole_digits=4,decimal_places=2"`
	Quantity *int          `json:"quantity,omitempty" form:"quantity"`
}

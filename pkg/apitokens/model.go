package apitokens

import (
	"time"

	"github.com/uptrace/bun"
)

// APIToken is an opaque key that grants access to the API when token auth is
// enabled.
type APIToken struct {
	bun.BaseModel `bun:"table:api_tokens,alias:at" json:"-"`

	ID         string     `bun:"id,pk" json:"id"`
	Name       string     `bun:"name,notnull" json:"name"`
	Key        string     `bun:"key,notnull,unique" json:"key"`
	CreatedAt  time.Time  `bun:"created_at,notnull" json:"created_at"`
	LastUsedAt *time.Time `bun:"last_used_at" json:"last_used_at"`
}

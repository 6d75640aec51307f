package books

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers book routes on a pre-configured group.
// Every route answers with and without the trailing slash.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB) {
	registerRoutes(g, NewService(db))
}

func registerRoutes(g *echo.Group, store Store) {
	h := &handler{bookService: store}

	for _, suffix := range []string{"", "/"} {
		g.GET(suffix, h.list)
		g.POST(suffix, h.create)
		g.GET("/:id"+suffix, h.retrieve)
		g.PUT("/:id"+suffix, h.replace)
		g.PATCH("/:id"+suffix, h.patch)
		g.DELETE("/:id"+suffix, h.delete)
	}
}

package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/shishobooks/bookstore/pkg/apitokens"
	"github.com/shishobooks/bookstore/pkg/binder"
	"github.com/shishobooks/bookstore/pkg/books"
	"github.com/shishobooks/bookstore/pkg/config"
	"github.com/shishobooks/bookstore/pkg/errcodes"
	"github.com/uptrace/bun"
	"golang.org/x/time/rate"
)

// rateLimitExpiry is how long an idle client's limiter is kept around.
const rateLimitExpiry = 3 * time.Minute

func New(cfg *config.Config, db *bun.DB) (*http.Server, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSAllowedOrigins,
	}))
	if cfg.RateLimitPerSecond > 0 {
		e.Use(rateLimiter(cfg))
	}

	health.RegisterRoutes(e)

	registerBookRoutes(e, db, cfg)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

func registerBookRoutes(e *echo.Echo, db *bun.DB, cfg *config.Config) {
	booksGroup := e.Group("/books")
	if cfg.AuthEnabled {
		authMiddleware := apitokens.NewMiddleware(apitokens.NewService(db))
		booksGroup.Use(authMiddleware.Authenticate)
	}
	books.RegisterRoutesWithGroup(booksGroup, db)
}

// rateLimiter limits each client IP to RateLimitPerSecond requests with
// bursts of up to RateLimitBurst. Health checks are never limited.
func rateLimiter(cfg *config.Config) echo.MiddlewareFunc {
	burst := cfg.RateLimitBurst
	if burst < 1 {
		burst = 1
	}
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.RateLimitPerSecond),
		Burst:     burst,
		ExpiresIn: rateLimitExpiry,
	})

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Request().URL.Path, "/health")
		},
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return errors.WithStack(err)
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			logger.FromEchoContext(c).Info("rate limited: " + identifier)
			return errcodes.TooManyRequests()
		},
	})
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}

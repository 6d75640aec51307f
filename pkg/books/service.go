package books

import (
	"context"
	"database/sql"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/bookstore/pkg/errcodes"
	"github.com/shishobooks/bookstore/pkg/models"
	"github.com/uptrace/bun"
)

const duplicateISBNMessage = "book with this isbn already exists."

// orderings maps the accepted `ordering` values onto columns.
var orderings = map[string]string{
	"id":         "b.id",
	"title":      "b.title",
	"author":     "b.author",
	"price":      "b.price",
	"quantity":   "b.quantity",
	"created_at": "b.created_at",
	"updated_at": "b.updated_at",
}

type RetrieveBookOptions struct {
	ID   *int
	ISBN *string
}

type ListBooksOptions struct {
	Search   *string
	Author   *string
	ISBN     *string
	Ordering string
	Limit    *int
	Offset   *int
}

type UpdateBookOptions struct {
	Columns []string
}

// Store is the persistence port the handlers work against.
type Store interface {
	CreateBook(ctx context.Context, book *models.Book) error
	RetrieveBook(ctx context.Context, opts RetrieveBookOptions) (*models.Book, error)
	ListBooks(ctx context.Context, opts ListBooksOptions) ([]*models.Book, error)
	UpdateBook(ctx context.Context, book *models.Book, opts UpdateBookOptions) error
	DeleteBook(ctx context.Context, id int) error
}

type Service struct {
	db *bun.DB
}

var _ Store = (*Service)(nil)

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) CreateBook(ctx context.Context, book *models.Book) error {
	now := time.Now()
	book.CreatedAt = now
	book.UpdatedAt = now

	if err := svc.checkISBNAvailable(ctx, book.ISBN, 0); err != nil {
		return err
	}

	_, err := svc.db.
		NewInsert().
		Model(book).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return translateWriteError(err)
	}

	logger.FromContext(ctx).Info("book created", logger.Data{"book_id": book.ID, "isbn": book.ISBN})
	return nil
}

func (svc *Service) RetrieveBook(ctx context.Context, opts RetrieveBookOptions) (*models.Book, error) {
	book := &models.Book{}

	q := svc.db.
		NewSelect().
		Model(book)

	if opts.ID != nil {
		q = q.Where("b.id = ?", *opts.ID)
	}
	if opts.ISBN != nil {
		q = q.Where("b.isbn = ?", *opts.ISBN)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Book")
		}
		return nil, errors.WithStack(err)
	}

	return book, nil
}

func (svc *Service) ListBooks(ctx context.Context, opts ListBooksOptions) ([]*models.Book, error) {
	books := []*models.Book{}

	q := svc.db.
		NewSelect().
		Model(&books)

	if opts.Search != nil && *opts.Search != "" {
		search := "%" + strings.ToLower(*opts.Search) + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("LOWER(b.title) LIKE ?", search).
				WhereOr("LOWER(b.author) LIKE ?", search).
				WhereOr("LOWER(b.isbn) LIKE ?", search)
		})
	}
	if opts.Author != nil && *opts.Author != "" {
		q = q.Where("b.author = ? COLLATE NOCASE", *opts.Author)
	}
	if opts.ISBN != nil && *opts.ISBN != "" {
		q = q.Where("b.isbn = ?", *opts.ISBN)
	}

	q = q.OrderExpr(orderClause(opts.Ordering))
	if opts.Ordering != "id" && opts.Ordering != "-id" {
		// Keep pages stable when the sort column has ties.
		q = q.OrderExpr("b.id ASC")
	}

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil && *opts.Offset > 0 {
		if opts.Limit == nil {
			// SQLite only accepts OFFSET after a LIMIT.
			q = q.Limit(math.MaxInt32)
		}
		q = q.Offset(*opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, errors.WithStack(err)
	}

	return books, nil
}

// UpdateBook writes only the given columns (plus updated_at) and reloads the
// record so that the caller sees what was stored.
func (svc *Service) UpdateBook(ctx context.Context, book *models.Book, opts UpdateBookOptions) error {
	for _, column := range opts.Columns {
		if column == "isbn" {
			if err := svc.checkISBNAvailable(ctx, book.ISBN, book.ID); err != nil {
				return err
			}
			break
		}
	}

	book.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	res, err := svc.db.
		NewUpdate().
		Model(book).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return translateWriteError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errcodes.NotFound("Book")
	}

	err = svc.db.
		NewSelect().
		Model(book).
		WherePK().
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errcodes.NotFound("Book")
		}
		return errors.WithStack(err)
	}

	logger.FromContext(ctx).Info("book updated", logger.Data{"book_id": book.ID, "columns": columns})
	return nil
}

func (svc *Service) DeleteBook(ctx context.Context, id int) error {
	res, err := svc.db.
		NewDelete().
		Model((*models.Book)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if n == 0 {
		return errcodes.NotFound("Book")
	}

	logger.FromContext(ctx).Info("book deleted", logger.Data{"book_id": id})
	return nil
}

// checkISBNAvailable reports a conflict when another book already holds the
// isbn. The unique index still backs this up for racing writers.
func (svc *Service) checkISBNAvailable(ctx context.Context, isbn string, exceptID int) error {
	q := svc.db.
		NewSelect().
		Model((*models.Book)(nil)).
		Where("b.isbn = ?", isbn)
	if exceptID != 0 {
		q = q.Where("b.id != ?", exceptID)
	}
	exists, err := q.Exists(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if exists {
		return errcodes.Conflict("isbn", duplicateISBNMessage)
	}
	return nil
}

func orderClause(ordering string) string {
	direction := "ASC"
	if strings.HasPrefix(ordering, "-") {
		direction = "DESC"
		ordering = strings.TrimPrefix(ordering, "-")
	}
	column, ok := orderings[ordering]
	if !ok {
		column = orderings["id"]
	}
	return column + " " + direction
}

func translateWriteError(err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed: books.isbn") {
		return errcodes.Conflict("isbn", duplicateISBNMessage)
	}
	return errors.WithStack(err)
}

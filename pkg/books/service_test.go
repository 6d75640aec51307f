package books

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/shishobooks/bookstore/pkg/errcodes"
	"github.com/shishobooks/bookstore/pkg/migrations"
	"github.com/shishobooks/bookstore/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	// Every connection to :memory: is its own database.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func newTestBook(isbn string) *models.Book {
	return &models.Book{
		Title:    "Test Book",
		Author:   "Test Author",
		ISBN:     isbn,
		Price:    models.MustPrice("19.99"),
		Quantity: 5,
	}
}

func createTestBook(t *testing.T, svc *Service, book *models.Book) *models.Book {
	t.Helper()
	require.NoError(t, svc.CreateBook(context.Background(), book))
	return book
}

func TestCreateBook(t *testing.T) {
	t.Parallel()
	svc := NewService(setupTestDB(t))
	ctx := context.Background()

	book := newTestBook("1234567890123")
	err := svc.CreateBook(ctx, book)
	require.NoError(t, err)

	assert.NotZero(t, book.ID)
	assert.False(t, book.CreatedAt.IsZero())
	assert.True(t, book.CreatedAt.Equal(book.UpdatedAt))

	retrieved, err := svc.RetrieveBook(ctx, RetrieveBookOptions{ID: &book.ID})
	require.NoError(t, err)
	assert.Equal(t, "Test Book", retrieved.Title)
	assert.Equal(t, "Test Author", retrieved.Author)
	assert.Equal(t, "1234567890123", retrieved.ISBN)
	assert.Equal(t, "19.99", retrieved.Price.StringFixed(2))
	assert.Equal(t, 5, retrieved.Quantity)
	assert.True(t, retrieved.CreatedAt.Equal(retrieved.UpdatedAt))
}

func TestCreateBook_IDsAreNotReused(t *testing.T) {
	t.Parallel()
	svc := NewService(setupTestDB(t))
	ctx := context.Background()

	first := createTestBook(t, svc, newTestBook("1111111111111"))
	require.NoError(t, svc.DeleteBook(ctx, first.ID))

	second := createTestBook(t, svc, newTestBook("1111111111111"))
	assert.Greater(t, second.ID, first.ID)
}

func TestCreateBook_DuplicateISBN(t *testing.T) {
	t.Parallel()
	svc := NewService(setupTestDB(t))
	ctx := context.Background()

	createTestBook(t, svc, newTestBook("1234567890123"))

	err := svc.CreateBook(ctx, newTestBook("1234567890123"))
	require.Error(t, err)

	var codeErr *errcodes.Error
	require.ErrorAs(t, err, &codeErr)
	assert.Equal(t, "conflict", codeErr.Code)
	assert.Equal(t, []string{duplicateISBNMessage}, codeErr.Fields["isbn"])

	books, err := svc.ListBooks(ctx, ListBooksOptions{Ordering: "id"})
	require.NoError(t, err)
	assert.Len(t, books, 1)
}

func TestTranslateWriteError_UniqueIndex(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	// Bypass the service pre-check to hit the index directly.
	now := time.Now()
	for i := 0; i < 2; i++ {
		book := newTestBook("9999999999999")
		book.CreatedAt = now
		book.UpdatedAt = now
		_, err := db.NewInsert().Model(book).Exec(ctx)
		if i == 0 {
			require.NoError(t, err)
			continue
		}
		require.Error(t, err)
		assert.ErrorIs(t, translateWriteError(err), errcodes.Conflict("isbn", duplicateISBNMessage))
	}
}

func TestRetrieveBook_NotFound(t *testing.T) {
	t.Parallel()
	svc := NewService(setupTestDB(t))

	id := 999
	book, err := svc.RetrieveBook(context.Background(), RetrieveBookOptions{ID: &id})
	assert.Nil(t, book)
	assert.ErrorIs(t, err, errcodes.NotFound("Book"))
}

func TestListBooks(t *testing.T) {
	t.Parallel()
	svc := NewService(setupTestDB(t))
	ctx := context.Background()

	seed := []struct {
		title, author, isbn, price string
		quantity                   int
	}{
		{"Dune", "Frank Herbert", "9780441013593", "9.99", 3},
		{"Emma", "Jane Austen", "9780141439587", "7.50", 10},
		{"Children of Dune", "Frank Herbert", "9780441104024", "12.00", 0},
	}
	for _, s := range seed {
		createTestBook(t, svc, &models.Book{
			Title:    s.title,
			Author:   s.author,
			ISBN:     s.isbn,
			Price:    models.MustPrice(s.price),
			Quantity: s.quantity,
		})
	}

	titles := func(books []*models.Book) []string {
		out := make([]string, 0, len(books))
		for _, b := range books {
			out = append(out, b.Title)
		}
		return out
	}
	ptr := func(s string) *string { return &s }
	intPtr := func(i int) *int { return &i }

	tests := []struct {
		name     string
		opts     ListBooksOptions
		expected []string
	}{
		{"all by id", ListBooksOptions{Ordering: "id"}, []string{"Dune", "Emma", "Children of Dune"}},
		{"search is case-insensitive", ListBooksOptions{Ordering: "id", Search: ptr("dune")}, []string{"Dune", "Children of Dune"}},
		{"search matches isbn", ListBooksOptions{Ordering: "id", Search: ptr("141439")}, []string{"Emma"}},
		{"author exact", ListBooksOptions{Ordering: "id", Author: ptr("frank herbert")}, []string{"Dune", "Children of Dune"}},
		{"author is not a substring match", ListBooksOptions{Ordering: "id", Author: ptr("Frank")}, []string{}},
		{"isbn exact", ListBooksOptions{Ordering: "id", ISBN: ptr("9780141439587")}, []string{"Emma"}},
		{"order by title", ListBooksOptions{Ordering: "title"}, []string{"Children of Dune", "Dune", "Emma"}},
		{"order by price descending", ListBooksOptions{Ordering: "-price"}, []string{"Children of Dune", "Dune", "Emma"}},
		{"order by quantity", ListBooksOptions{Ordering: "quantity"}, []string{"Children of Dune", "Dune", "Emma"}},
		{"limit", ListBooksOptions{Ordering: "id", Limit: intPtr(2)}, []string{"Dune", "Emma"}},
		{"limit and offset", ListBooksOptions{Ordering: "id", Limit: intPtr(2), Offset: intPtr(2)}, []string{"Children of Dune"}},
		{"offset without limit", ListBooksOptions{Ordering: "id", Offset: intPtr(1)}, []string{"Emma", "Children of Dune"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			books, err := svc.ListBooks(ctx, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, titles(books))
		})
	}
}

func TestListBooks_Empty(t *testing.T) {
	t.Parallel()
	svc := NewService(setupTestDB(t))

	books, err := svc.ListBooks(context.Background(), ListBooksOptions{Ordering: "id"})
	require.NoError(t, err)
	assert.NotNil(t, books)
	assert.Empty(t, books)
}

func TestUpdateBook_RefreshesUpdatedAt(t *testing.T) {
	t.Parallel()
	svc := NewService(setupTestDB(t))
	ctx := context.Background()

	created := createTestBook(t, svc, newTestBook("1234567890123"))
	book, err := svc.RetrieveBook(ctx, RetrieveBookOptions{ID: &created.ID})
	require.NoError(t, err)
	createdAt := book.CreatedAt

	time.Sleep(5 * time.Millisecond)
	book.Title = "New Title"
	err = svc.UpdateBook(ctx, book, UpdateBookOptions{Columns: []string{"title"}})
	require.NoError(t, err)

	assert.Equal(t, "New Title", book.Title)
	assert.True(t, book.CreatedAt.Equal(createdAt))
	assert.True(t, book.UpdatedAt.After(book.CreatedAt))
}

func TestUpdateBook_OnlyWritesGivenColumns(t *testing.T) {
	t.Parallel()
	svc := NewService(setupTestDB(t))
	ctx := context.Background()

	book := createTestBook(t, svc, newTestBook("1234567890123"))

	// Two writers holding their own copy of the record.
	first, err := svc.RetrieveBook(ctx, RetrieveBookOptions{ID: &book.ID})
	require.NoError(t, err)
	second, err := svc.RetrieveBook(ctx, RetrieveBookOptions{ID: &book.ID})
	require.NoError(t, err)

	first.Title = "Changed Title"
	require.NoError(t, svc.UpdateBook(ctx, first, UpdateBookOptions{Columns: []string{"title"}}))

	second.Quantity = 42
	require.NoError(t, svc.UpdateBook(ctx, second, UpdateBookOptions{Columns: []string{"quantity"}}))

	reloaded, err := svc.RetrieveBook(ctx, RetrieveBookOptions{ID: &book.ID})
	require.NoError(t, err)
	assert.Equal(t, "Changed Title", reloaded.Title)
	assert.Equal(t, 42, reloaded.Quantity)
}

func TestUpdateBook_DuplicateISBN(t *testing.T) {
	t.Parallel()
	svc := NewService(setupTestDB(t))
	ctx := context.Background()

	createTestBook(t, svc, newTestBook("1111111111111"))
	other := createTestBook(t, svc, newTestBook("2222222222222"))

	other.ISBN = "1111111111111"
	err := svc.UpdateBook(ctx, other, UpdateBookOptions{Columns: []string{"isbn"}})
	assert.ErrorIs(t, err, errcodes.Conflict("isbn", duplicateISBNMessage))

	// Keeping its own isbn is not a conflict.
	other.ISBN = "2222222222222"
	require.NoError(t, svc.UpdateBook(ctx, other, UpdateBookOptions{Columns: []string{"isbn"}}))
}

func TestUpdateBook_NotFound(t *testing.T) {
	t.Parallel()
	svc := NewService(setupTestDB(t))

	book := newTestBook("1234567890123")
	book.ID = 999
	err := svc.UpdateBook(context.Background(), book, UpdateBookOptions{Columns: []string{"title"}})
	assert.ErrorIs(t, err, errcodes.NotFound("Book"))
}

func TestDeleteBook(t *testing.T) {
	t.Parallel()
	svc := NewService(setupTestDB(t))
	ctx := context.Background()

	book := createTestBook(t, svc, newTestBook("1234567890123"))

	require.NoError(t, svc.DeleteBook(ctx, book.ID))

	_, err := svc.RetrieveBook(ctx, RetrieveBookOptions{ID: &book.ID})
	assert.ErrorIs(t, err, errcodes.NotFound("Book"))

	err = svc.DeleteBook(ctx, book.ID)
	assert.ErrorIs(t, err, errcodes.NotFound("Book"))
}

func TestDeleteBook_LeavesOthers(t *testing.T) {
	t.Parallel()
	svc := NewService(setupTestDB(t))
	ctx := context.Background()

	var ids []int
	for i := 0; i < 3; i++ {
		ids = append(ids, createTestBook(t, svc, newTestBook(fmt.Sprintf("%013d", i))).ID)
	}

	require.NoError(t, svc.DeleteBook(ctx, ids[1]))

	books, err := svc.ListBooks(ctx, ListBooksOptions{Ordering: "id"})
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, ids[0], books[0].ID)
	assert.Equal(t, ids[2], books[1].ID)
}

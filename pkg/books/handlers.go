package books

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shishobooks/bookstore/pkg/errcodes"
	"github.com/shishobooks/bookstore/pkg/models"
)

type handler struct {
	bookService Store
}

// bookID parses the path id. Anything that isn't an integer can't name a
// book, so it's reported the same way as an unknown id.
func bookID(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return 0, errcodes.NotFound("Book")
	}
	return id, nil
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := ListBooksQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	books, err := h.bookService.ListBooks(ctx, ListBooksOptions{
		Search:   params.Search,
		Author:   params.Author,
		ISBN:     params.ISBN,
		Ordering: params.Ordering,
		Limit:    params.Limit,
		Offset:   params.Offset,
	})
	if err != nil {
		return errors.WithStack(err)
	}
	if books == nil {
		books = []*models.Book{}
	}

	return errors.WithStack(c.JSON(http.StatusOK, books))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := bookID(c)
	if err != nil {
		return err
	}

	book, err := h.bookService.RetrieveBook(ctx, RetrieveBookOptions{
		ID: &id,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, book))
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := CreateBookPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	book := &models.Book{
		Title:  params.Title,
		Author: params.Author,
		ISBN:   params.ISBN,
		Price:  *params.Price,
	}
	if params.Quantity != nil {
		book.Quantity = *params.Quantity
	}

	if err := h.bookService.CreateBook(ctx, book); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusCreated, book))
}

func (h *handler) replace(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := bookID(c)
	if err != nil {
		return err
	}

	// Fetch the book.
	book, err := h.bookService.RetrieveBook(ctx, RetrieveBookOptions{
		ID: &id,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	// Bind params.
	params := ReplaceBookPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	book.Title = params.Title
	book.Author = params.Author
	book.ISBN = params.ISBN
	book.Price = *params.Price
	opts := UpdateBookOptions{Columns: []string{"title", "author", "isbn", "price"}}
	if params.Quantity != nil {
		book.Quantity = *params.Quantity
		opts.Columns = append(opts.Columns, "quantity")
	}

	// Update the model.
	if err := h.bookService.UpdateBook(ctx, book, opts); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, book))
}

func (h *handler) patch(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := bookID(c)
	if err != nil {
		return err
	}

	// Fetch the book.
	book, err := h.bookService.RetrieveBook(ctx, RetrieveBookOptions{
		ID: &id,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	// Bind params.
	params := PatchBookPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	// Keep track of what's been changed.
	opts := UpdateBookOptions{Columns: []string{}}

	if params.Title != nil {
		book.Title = *params.Title
		opts.Columns = append(opts.Columns, "title")
	}
	if params.Author != nil {
		book.Author = *params.Author
		opts.Columns = append(opts.Columns, "author")
	}
	if params.ISBN != nil {
		book.ISBN = *params.ISBN
		opts.Columns = append(opts.Columns, "isbn")
	}
	if params.Price != nil {
		book.Price = *params.Price
		opts.Columns = append(opts.Columns, "price")
	}
	if params.Quantity != nil {
		book.Quantity = *params.Quantity
		opts.Columns = append(opts.Columns, "quantity")
	}

	// Update the model. An empty patch still counts as a mutation and
	// refreshes updated_at.
	if err := h.bookService.UpdateBook(ctx, book, opts); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, book))
}

func (h *handler) delete(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := bookID(c)
	if err != nil {
		return err
	}

	if err := h.bookService.DeleteBook(ctx, id); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

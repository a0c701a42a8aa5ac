package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"librarydesk/pkg/borrowstate"
	"librarydesk/pkg/domain"
	"librarydesk/pkg/libraryclient"
	"librarydesk/pkg/session"
)

// Flash texts shown after member borrow and return.
const (
	BorrowSucceeded = "Success borrow book!"
	BorrowErrored   = "Error borrowing book"
	ReturnSucceeded = "Book returned successfully!"
	ReturnErrored   = "Error returning book"
)

const newestCount = 3

// Home is the member landing page.
type Home struct {
	Featured   *domain.Book
	Newest     []domain.Book
	Books      []domain.Book
	Categories []domain.Category
	Query      string
	// Searching is set when Query is non-blank; Results then holds the matches.
	Searching bool
	Results   []domain.Book
}

// Home loads books and categories together. The API lists newest first, so the
// first book is featured and the first three are the newest.
func (a *App) Home(ctx context.Context, sess session.Session, query string) (Home, error) {
	var (
		books      []domain.Book
		categories []domain.Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		books, err = a.client.ListBooks(gctx, sess)
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = a.client.ListCategories(gctx, sess)
		return err
	})
	if err := g.Wait(); err != nil {
		return Home{}, err
	}

	home := Home{Books: books, Categories: categories, Query: strings.TrimSpace(query)}
	if len(books) > 0 {
		home.Featured = &books[0]
	}
	home.Newest = books[:min(newestCount, len(books))]
	if home.Query != "" {
		home.Searching = true
		home.Results = SearchBooks(books, home.Query)
	}
	return home, nil
}

// SearchBooks matches q against title and author, case-insensitively.
func SearchBooks(books []domain.Book, q string) []domain.Book {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return nil
	}
	var out []domain.Book
	for _, b := range books {
		if strings.Contains(strings.ToLower(b.Title), q) || strings.Contains(strings.ToLower(b.Author), q) {
			out = append(out, b)
		}
	}
	return out
}

// BookDetail is one book with the member's borrow affordance for it.
type BookDetail struct {
	Book  domain.Book
	More  []domain.Book
	State borrowstate.Result
}

// BookDetail fetches the book, the catalog and the member's own borrows in
// parallel, then reconciles the borrow state.
func (a *App) BookDetail(ctx context.Context, sess session.Session, id int64) (BookDetail, error) {
	var (
		book    domain.Book
		books   []domain.Book
		records []domain.BorrowRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		book, err = a.client.GetBook(gctx, sess, id)
		if libraryclient.IsStatus(err, http.StatusNotFound) {
			return ErrBookNotFound
		}
		return err
	})
	g.Go(func() error {
		var err error
		books, err = a.client.ListBooks(gctx, sess)
		return err
	})
	g.Go(func() error {
		var err error
		records, err = a.client.ListSelfBorrows(gctx, sess)
		return err
	})
	if err := g.Wait(); err != nil {
		return BookDetail{}, err
	}
	if book.ID == 0 {
		return BookDetail{}, ErrBookNotFound
	}

	detail := BookDetail{Book: book, State: borrowstate.Observe(ctx, records, id)}
	for _, b := range books {
		if b.ID != id {
			detail.More = append(detail.More, b)
		}
	}
	return detail, nil
}

// Borrow requests a loan and returns the flash message to show.
func (a *App) Borrow(ctx context.Context, sess session.Session, bookID int64) (string, error) {
	_, err := a.desk.Borrow(ctx, sess, bookID)
	switch {
	case err == nil:
		return BorrowSucceeded, nil
	case errors.Is(err, borrowstate.ErrNotBorrowable):
		return "Failed: this book is already requested or on loan", err
	}
	var apiErr *libraryclient.APIError
	if errors.As(err, &apiErr) {
		return "Failed: " + libraryclient.MessageOf(err, http.StatusText(apiErr.Status)), err
	}
	return BorrowErrored, err
}

// Return hands the active loan back. Without confirmation nothing is sent and
// borrowstate.ErrConfirmationRequired is returned with the prompt.
func (a *App) Return(ctx context.Context, sess session.Session, bookID int64, confirmed bool) (string, error) {
	_, err := a.desk.Return(ctx, sess, bookID, confirmed)
	switch {
	case err == nil:
		return ReturnSucceeded, nil
	case errors.Is(err, borrowstate.ErrConfirmationRequired):
		return borrowstate.ReturnPrompt, err
	}
	return ReturnErrored, err
}

// CategoryPage is one category with its books.
type CategoryPage = libraryclient.CategoryBooks

func (a *App) Category(ctx context.Context, sess session.Session, id int64) (CategoryPage, error) {
	page, err := a.client.CategoryBooks(ctx, sess, id)
	if err != nil {
		return CategoryPage{}, fmt.Errorf("category %d: %w", id, err)
	}
	return page, nil
}

// BorrowedItem is one of the member's borrow records with its book resolved.
type BorrowedItem struct {
	Record domain.BorrowRecord
	Title  string
	Author string
	Cover  string
}

// Borrowed lists the member's own history joined with book titles. Records whose
// book is gone keep a placeholder title.
func (a *App) Borrowed(ctx context.Context, sess session.Session) ([]BorrowedItem, error) {
	var (
		books   []domain.Book
		records []domain.BorrowRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		books, err = a.client.ListBooks(gctx, sess)
		return err
	})
	g.Go(func() error {
		var err error
		records, err = a.client.ListSelfBorrows(gctx, sess)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byID := make(map[int64]domain.Book, len(books))
	for _, b := range books {
		byID[b.ID] = b
	}
	items := make([]BorrowedItem, 0, len(records))
	for _, rec := range records {
		item := BorrowedItem{Record: rec, Title: fmt.Sprintf("Book #%d", rec.BookID), Cover: a.CoverURL("")}
		if b, ok := byID[rec.BookID]; ok {
			item.Title, item.Author, item.Cover = b.Title, b.Author, a.CoverURL(b.CoverImage)
		}
		items = append(items, item)
	}
	return items, nil
}

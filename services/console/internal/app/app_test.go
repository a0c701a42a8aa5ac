package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"librarydesk/pkg/borrowstate"
	"librarydesk/pkg/crud"
	"librarydesk/pkg/domain"
	"librarydesk/pkg/libraryclient"
	"librarydesk/pkg/session"
	"librarydesk/pkg/stats"
	"librarydesk/pkg/storage"
	"librarydesk/services/console/internal/librarytest"
)

type testEnv struct {
	app    *App
	api    *librarytest.Server
	member session.Session
	staff  session.Session
	admin  session.Session
}

func newTestEnv(t *testing.T, covers *storage.CoverUploader) testEnv {
	t.Helper()
	api := librarytest.New(t)
	client, err := libraryclient.New(libraryclient.Config{BaseURL: api.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	a, err := New(Config{
		Client:   client,
		Sessions: session.NewMemoryStore(time.Hour),
		Covers:   covers,
		Location: time.UTC,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	member := api.AddUser("Mia", "mia@example.com", "secret", domain.RoleMember)
	librarian := api.AddUser("Lee", "lee@example.com", "secret", domain.RoleLibrarian)
	admin := api.AddUser("Ada", "ada@example.com", "secret", domain.RoleAdmin)
	return testEnv{
		app:    a,
		api:    api,
		member: session.Session{Token: api.Token(member.ID), User: member},
		staff:  session.Session{Token: api.Token(librarian.ID), User: librarian},
		admin:  session.Session{Token: api.Token(admin.ID), User: admin},
	}
}

func TestLoginResolveLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	sess, key, err := env.app.Login(ctx, " MIA@example.com ", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if sess.User.Email != "mia@example.com" || sess.Token == "" {
		t.Fatalf("unexpected session %+v", sess)
	}
	got, ok := env.app.Resolve(ctx, key)
	if !ok || got.Token != sess.Token || got.User.Role != domain.RoleMember {
		t.Fatalf("resolve = %+v, %v", got, ok)
	}
	if err := env.app.Logout(ctx, key); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok := env.app.Resolve(ctx, key); ok {
		t.Fatalf("session should be gone after logout")
	}
}

func TestLoginFailureCarriesAPIMessage(t *testing.T) {
	env := newTestEnv(t, nil)
	_, _, err := env.app.Login(context.Background(), "mia@example.com", "wrong")
	if err == nil {
		t.Fatalf("expected login failure")
	}
	if msg := Message(err, "Login failed"); msg != "Invalid email or password" {
		t.Fatalf("message = %q", msg)
	}
}

func TestRegisterSignsInAsMember(t *testing.T) {
	env := newTestEnv(t, nil)
	sess, key, err := env.app.Register(context.Background(), "Ana", "ana@example.com", "pw")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if sess.User.Role != domain.RoleMember || key == "" {
		t.Fatalf("unexpected session %+v key=%q", sess, key)
	}
	if _, _, err := env.app.Register(context.Background(), "", "x@example.com", "pw"); err == nil {
		t.Fatalf("expected error for missing name")
	}
}

func TestHomeFeaturedNewestAndSearch(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, b := range []domain.Book{
		{Title: "Dune", Author: "Frank Herbert"},
		{Title: "Emma", Author: "Jane Austen"},
		{Title: "Persuasion", Author: "Jane Austen"},
		{Title: "Ulysses", Author: "James Joyce"},
	} {
		env.api.AddBook(b)
	}
	env.api.AddCategory("Fiction", "")

	home, err := env.app.Home(context.Background(), env.member, "  jane ")
	if err != nil {
		t.Fatalf("home: %v", err)
	}
	if home.Featured == nil || home.Featured.Title != "Dune" {
		t.Fatalf("featured = %+v", home.Featured)
	}
	if len(home.Newest) != 3 || home.Newest[2].Title != "Persuasion" {
		t.Fatalf("newest = %+v", home.Newest)
	}
	if !home.Searching || len(home.Results) != 2 || len(home.Categories) != 1 {
		t.Fatalf("search = %+v", home)
	}

	empty, err := env.app.Home(context.Background(), env.member, " ")
	if err != nil {
		t.Fatalf("home: %v", err)
	}
	if empty.Searching || empty.Results != nil {
		t.Fatalf("blank query should not search: %+v", empty)
	}
}

func TestHomeOnEmptyCatalog(t *testing.T) {
	env := newTestEnv(t, nil)
	home, err := env.app.Home(context.Background(), env.member, "")
	if err != nil {
		t.Fatalf("home: %v", err)
	}
	if home.Featured != nil || len(home.Newest) != 0 {
		t.Fatalf("expected empty home, got %+v", home)
	}
}

func TestBookDetailNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.app.BookDetail(context.Background(), env.member, 999); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("expected ErrBookNotFound, got %v", err)
	}
}

func TestBorrowApproveReturnFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	book := env.api.AddBook(domain.Book{Title: "Dune", Author: "Frank Herbert", Stock: 2, Available: 2})
	env.api.AddBook(domain.Book{Title: "Emma", Author: "Jane Austen"})

	detail, err := env.app.BookDetail(ctx, env.member, book.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if detail.State.Affordance != borrowstate.Borrow || len(detail.More) != 1 {
		t.Fatalf("unexpected detail %+v", detail)
	}

	msg, err := env.app.Borrow(ctx, env.member, book.ID)
	if err != nil || msg != BorrowSucceeded {
		t.Fatalf("borrow = %q, %v", msg, err)
	}
	detail, _ = env.app.BookDetail(ctx, env.member, book.ID)
	if detail.State.Affordance != borrowstate.PendingApproval {
		t.Fatalf("expected pending, got %v", detail.State.Affordance)
	}
	if msg, err := env.app.Borrow(ctx, env.member, book.ID); !errors.Is(err, borrowstate.ErrNotBorrowable) || !strings.HasPrefix(msg, "Failed: ") {
		t.Fatalf("second borrow = %q, %v", msg, err)
	}

	table, err := env.app.BorrowsTable(ctx, env.staff)
	if err != nil {
		t.Fatalf("borrows table: %v", err)
	}
	if err := table.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	recordID := table.Rows()[0].ID
	if err := table.RunAction(ctx, recordID, "approve", false, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if table.Rows()[0].Status != domain.BorrowBorrowed {
		t.Fatalf("table should reload after approve, got %s", table.Rows()[0].Status)
	}

	msg, err = env.app.Return(ctx, env.member, book.ID, false)
	if !errors.Is(err, borrowstate.ErrConfirmationRequired) || msg != borrowstate.ReturnPrompt {
		t.Fatalf("unconfirmed return = %q, %v", msg, err)
	}
	msg, err = env.app.Return(ctx, env.member, book.ID, true)
	if err != nil || msg != ReturnSucceeded {
		t.Fatalf("return = %q, %v", msg, err)
	}
	detail, _ = env.app.BookDetail(ctx, env.member, book.ID)
	if detail.State.Affordance != borrowstate.Borrow {
		t.Fatalf("expected borrow after return, got %v", detail.State.Affordance)
	}
}

func TestBorrowSurfacesAPIFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	book := env.api.AddBook(domain.Book{Title: "Dune"})
	env.api.Fail("POST", "/borrow/"+itoa(book.ID), 400, "Book is out of stock")

	msg, err := env.app.Borrow(context.Background(), env.member, book.ID)
	if err == nil || msg != "Failed: Book is out of stock" {
		t.Fatalf("borrow = %q, %v", msg, err)
	}
}

func TestBookDetailReportsDuplicateActiveBorrows(t *testing.T) {
	env := newTestEnv(t, nil)
	book := env.api.AddBook(domain.Book{Title: "Dune"})
	first := env.api.AddBorrow(domain.BorrowRecord{UserID: env.member.User.ID, BookID: book.ID, Status: domain.BorrowBorrowed})
	env.api.AddBorrow(domain.BorrowRecord{UserID: env.member.User.ID, BookID: book.ID, Status: domain.BorrowPending})

	detail, err := env.app.BookDetail(context.Background(), env.member, book.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if detail.State.Affordance != borrowstate.Return || detail.State.Active.ID != first.ID || !detail.State.Ambiguous() {
		t.Fatalf("unexpected state %+v", detail.State)
	}
}

func TestBorrowedJoinsTitles(t *testing.T) {
	env := newTestEnv(t, nil)
	book := env.api.AddBook(domain.Book{Title: "Dune", Author: "Frank Herbert", CoverImage: "covers/dune.jpg"})
	env.api.AddBorrow(domain.BorrowRecord{UserID: env.member.User.ID, BookID: book.ID, Status: domain.BorrowReturned})
	env.api.AddBorrow(domain.BorrowRecord{UserID: env.member.User.ID, BookID: 4242, Status: domain.BorrowRejected})
	env.api.AddBorrow(domain.BorrowRecord{UserID: env.staff.User.ID, BookID: book.ID, Status: domain.BorrowPending})

	items, err := env.app.Borrowed(context.Background(), env.member)
	if err != nil {
		t.Fatalf("borrowed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected own records only, got %d", len(items))
	}
	if items[0].Title != "Dune" || items[0].Cover != env.api.URL+"/uploads/covers/dune.jpg" {
		t.Fatalf("unexpected item %+v", items[0])
	}
	if items[1].Title != "Book #4242" || items[1].Cover != libraryclient.PlaceholderCover {
		t.Fatalf("unexpected item %+v", items[1])
	}
}

func TestCategoryPage(t *testing.T) {
	env := newTestEnv(t, nil)
	fiction := env.api.AddCategory("Fiction", "Made up")
	env.api.AddBook(domain.Book{Title: "Dune", CategoryID: fiction.ID})
	env.api.AddBook(domain.Book{Title: "Cosmos"})

	page, err := env.app.Category(context.Background(), env.member, fiction.ID)
	if err != nil {
		t.Fatalf("category: %v", err)
	}
	if page.Category.Name != "Fiction" || len(page.Books) != 1 || page.Books[0].CategoryName != "Fiction" {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestDashboardRequiresStaff(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	if _, err := env.app.BooksTable(ctx, env.member); !errors.Is(err, ErrForbidden) {
		t.Fatalf("books table: %v", err)
	}
	if _, err := env.app.Statistics(ctx, env.member, stats.Range{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("statistics: %v", err)
	}
	if err := env.app.ChangeUserPassword(ctx, env.member, env.staff.User.ID, "x"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("password: %v", err)
	}
}

func TestAccountManagementIsAdminOnly(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	if _, err := env.app.UsersTable(ctx, env.staff, ""); !errors.Is(err, ErrAdminOnly) || !errors.Is(err, ErrForbidden) {
		t.Fatalf("users table as librarian: %v", err)
	}
	if err := env.app.ChangeUserPassword(ctx, env.staff, env.member.User.ID, "newpass1"); !errors.Is(err, ErrAdminOnly) {
		t.Fatalf("password as librarian: %v", err)
	}
	if env.api.Password(env.member.User.ID) != "secret" {
		t.Fatalf("password must be unchanged")
	}
	if _, err := env.app.UsersTable(ctx, env.admin, ""); err != nil {
		t.Fatalf("users table as admin: %v", err)
	}
}

func TestBooksTableSendsTypedPayload(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	fiction := env.api.AddCategory("Fiction", "")

	table, err := env.app.BooksTable(ctx, env.staff)
	if err != nil {
		t.Fatalf("books table: %v", err)
	}
	if err := table.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := table.OpenCreate(); err != nil {
		t.Fatalf("open create: %v", err)
	}
	var categoryField crud.FieldView
	for _, f := range table.View().Modal.Fields {
		if f.Name == "categoryId" {
			categoryField = f
		}
	}
	if len(categoryField.Options) != 1 || categoryField.Options[0].Label != "Fiction" {
		t.Fatalf("category options = %+v", categoryField.Options)
	}

	err = table.Submit(ctx, crud.Values{
		"title": "Dune", "author": "Frank Herbert", "publisher": "Chilton", "isbn": "978-0441013593",
		"year": "1965", "stock": "4", "categoryId": itoa(fiction.ID), "description": "Spice",
	})
	if err != nil {
		t.Fatalf("submit: %v (form error %q)", err, table.FormError())
	}
	payload := env.api.Payload("POST", "/book")
	if payload["stock"] != float64(4) || payload["year"] != float64(1965) || payload["categoryId"] != float64(fiction.ID) {
		t.Fatalf("numbers should be sent as numbers: %#v", payload)
	}
	if payload["coverImage"] != "" {
		t.Fatalf("optional text should be sent empty: %#v", payload)
	}
	if len(table.Rows()) != 1 || table.Rows()[0].CategoryName != "Fiction" || table.Modal() != crud.ModalClosed {
		t.Fatalf("table should reload and close: rows=%+v modal=%v", table.Rows(), table.Modal())
	}
	view := table.View()
	if view.Rows[0].Cells[0].Value != libraryclient.PlaceholderCover {
		t.Fatalf("cover cell = %q", view.Rows[0].Cells[0].Value)
	}
}

func TestBooksTableKeepsFormOpenOnFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	fiction := env.api.AddCategory("Fiction", "")
	book := env.api.AddBook(domain.Book{Title: "Dune", Author: "Frank Herbert", Stock: 1})
	env.api.Fail("PUT", "/book/"+itoa(book.ID), 422, "ISBN already exists")

	table, _ := env.app.BooksTable(ctx, env.staff)
	_ = table.Load(ctx)
	if err := table.OpenEdit(book.ID); err != nil {
		t.Fatalf("open edit: %v", err)
	}
	values := crud.Values{
		"title": "Dune", "author": "Frank Herbert", "publisher": "Chilton", "isbn": "1",
		"year": "1965", "stock": "1", "description": "Spice",
	}
	if err := table.Submit(ctx, values); err == nil {
		t.Fatalf("expected required category error")
	}
	if table.FormError() != "Category is required" {
		t.Fatalf("form error = %q", table.FormError())
	}
	if env.api.Payload("PUT", "/book/"+itoa(book.ID)) != nil {
		t.Fatalf("invalid form must not reach the API")
	}

	values["categoryId"] = itoa(fiction.ID)
	if err := table.Submit(ctx, values); err == nil {
		t.Fatalf("expected API failure")
	}
	if table.FormError() != "ISBN already exists" || table.Modal() != crud.ModalEdit {
		t.Fatalf("form error = %q modal=%v", table.FormError(), table.Modal())
	}
	if modal := table.View().Modal; modal == nil || modal.Title != "Edit Item" || modal.Fields[0].Value != "Dune" {
		t.Fatalf("modal = %+v", modal)
	}
}

func TestUsersTableDropsEmptyPassword(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	member := env.member.User

	table, err := env.app.UsersTable(ctx, env.admin, "mia")
	if err != nil {
		t.Fatalf("users table: %v", err)
	}
	if err := table.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(table.Rows()) != 1 {
		t.Fatalf("search should filter, got %+v", table.Rows())
	}
	if err := table.OpenEdit(member.ID); err != nil {
		t.Fatalf("open edit: %v", err)
	}
	err = table.Submit(ctx, crud.Values{"name": "Mia R", "email": "mia@example.com", "password": "", "role": "librarian"})
	if err != nil {
		t.Fatalf("submit: %v (%s)", err, table.FormError())
	}
	payload := env.api.Payload("PUT", "/manage-user/"+itoa(member.ID))
	if _, sent := payload["password"]; sent {
		t.Fatalf("empty password must not be sent: %#v", payload)
	}
	if payload["role"] != "librarian" {
		t.Fatalf("role = %#v", payload["role"])
	}
	if env.api.Password(member.ID) != "secret" {
		t.Fatalf("password should be unchanged")
	}
	if got := table.View().Rows[0].Cells[2].Value; got != "Librarian" {
		t.Fatalf("role label = %q", got)
	}
}

func TestUsersTableCreateWithoutPasswordShowsAPIMessage(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	table, _ := env.app.UsersTable(ctx, env.admin, "")
	_ = table.Load(ctx)
	_ = table.OpenCreate()
	if err := table.Submit(ctx, crud.Values{"name": "Bo", "email": "bo@example.com", "role": "user"}); err == nil {
		t.Fatalf("expected create failure")
	}
	if table.FormError() != "Password is required" || table.Modal() != crud.ModalCreate {
		t.Fatalf("form error = %q modal=%v", table.FormError(), table.Modal())
	}
}

func TestBorrowsTableRejectAndReturn(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	pending := env.api.AddBorrow(domain.BorrowRecord{UserID: env.member.User.ID, BookID: 1, Status: domain.BorrowPending})
	onLoan := env.api.AddBorrow(domain.BorrowRecord{UserID: env.member.User.ID, BookID: 2, Status: domain.BorrowBorrowed})

	table, _ := env.app.BorrowsTable(ctx, env.staff)
	_ = table.Load(ctx)
	view := table.View()
	if view.CanCreate || view.Rows[0].CanEdit || view.Rows[0].CanDelete {
		t.Fatalf("borrows are read-only: %+v", view)
	}
	if len(view.Rows[0].Actions) != 2 || len(view.Rows[1].Actions) != 1 || view.Rows[1].Actions[0].Confirm != ReturnConfirm {
		t.Fatalf("unexpected actions %+v", view.Rows)
	}
	if view.Rows[0].Cells[5].Value != "PENDING" {
		t.Fatalf("status cell = %q", view.Rows[0].Cells[5].Value)
	}

	if err := table.RunAction(ctx, pending.ID, "reject", false, "  "); err == nil {
		t.Fatalf("expected reason error")
	}
	if table.Alert() != "A reason is required to reject a borrow" {
		t.Fatalf("alert = %q", table.Alert())
	}
	if err := table.RunAction(ctx, pending.ID, "reject", false, "Damaged copy"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got := env.api.Borrows()[0]; got.Status != domain.BorrowRejected || *got.RejectedReason != "Damaged copy" {
		t.Fatalf("unexpected record %+v", got)
	}

	if err := table.RunAction(ctx, onLoan.ID, "return", false, ""); !errors.Is(err, crud.ErrConfirmationRequired) {
		t.Fatalf("return without confirmation: %v", err)
	}
	if p := table.View().ActionPrompt; p == nil || p.Message != ReturnConfirm {
		t.Fatalf("prompt = %+v", p)
	}
	env.api.Fail("POST", "/borrow/"+itoa(onLoan.ID)+"/return", 500, "")
	if err := table.RunAction(ctx, onLoan.ID, "return", true, ""); err == nil {
		t.Fatalf("expected return failure")
	}
	if table.Alert() != "Internal Server Error" {
		t.Fatalf("alert = %q", table.Alert())
	}
}

func TestChangeUserPassword(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	if err := env.app.ChangeUserPassword(ctx, env.admin, env.member.User.ID, " "); err == nil || Message(err, "") != "Password is required" {
		t.Fatalf("expected required error, got %v", err)
	}
	if err := env.app.ChangeUserPassword(ctx, env.admin, env.member.User.ID, "n3w"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if env.api.Password(env.member.User.ID) != "n3w" {
		t.Fatalf("password not updated")
	}
}

func TestStatistics(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	day := func(d int) domain.Timestamp {
		return domain.NewTimestamp(time.Date(2024, 3, d, 10, 0, 0, 0, time.UTC))
	}
	env.api.AddBorrow(domain.BorrowRecord{BookID: 1, Status: domain.BorrowBorrowed, CreatedAt: day(2)})
	env.api.AddBorrow(domain.BorrowRecord{BookID: 2, Status: domain.BorrowReturned, CreatedAt: day(1)})
	env.api.AddBorrow(domain.BorrowRecord{BookID: 3, Status: domain.BorrowPending, CreatedAt: day(9)})

	view, err := env.app.Statistics(ctx, env.staff, stats.Range{})
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if view.Totals.Borrowed != 1 || view.Totals.Returned != 1 || view.Report != nil || view.Notice != "" {
		t.Fatalf("unexpected view %+v", view)
	}

	view, _ = env.app.Statistics(ctx, env.staff, stats.Range{Start: "2024-03-01"})
	if view.Notice != stats.RangePrompt || view.Report != nil {
		t.Fatalf("half range = %+v", view)
	}
	view, _ = env.app.Statistics(ctx, env.staff, stats.Range{Start: "2024-03-05", End: "2024-03-01"})
	if view.Notice != "Invalid date range: end is before start" {
		t.Fatalf("notice = %q", view.Notice)
	}

	view, err = env.app.Statistics(ctx, env.staff, stats.Range{Start: "2024-03-01", End: "2024-03-02"})
	if err != nil || view.Report == nil {
		t.Fatalf("statistics: %+v %v", view, err)
	}
	if len(view.Report.Days) != 2 || view.Report.Days[0].Date != "2024-03-01" || view.Report.Totals.Borrowed != 1 {
		t.Fatalf("report = %+v", view.Report)
	}

	if _, err := env.app.Report(ctx, env.staff, stats.Range{End: "2024-03-02"}); !errors.Is(err, stats.ErrRangeRequired) {
		t.Fatalf("report without start: %v", err)
	}
}

type memObjects struct {
	mu   sync.Mutex
	keys []string
}

func (m *memObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, _ = io.Copy(io.Discard, r)
	m.keys = append(m.keys, key)
	return nil
}

func (m *memObjects) Delete(context.Context, string) error { return nil }
func (m *memObjects) URL(key string) string                { return "https://cdn.example.com/" + key }

func TestUploadCover(t *testing.T) {
	disabled := newTestEnv(t, nil)
	if _, err := disabled.app.UploadCover(context.Background(), disabled.staff, strings.NewReader("x")); !errors.Is(err, ErrCoversDisabled) {
		t.Fatalf("expected ErrCoversDisabled, got %v", err)
	}

	objects := &memObjects{}
	env := newTestEnv(t, storage.NewCoverUploader(objects, 1024))
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	if _, err := env.app.UploadCover(context.Background(), env.member, bytes.NewReader(png)); !errors.Is(err, ErrForbidden) {
		t.Fatalf("member upload: %v", err)
	}
	url, err := env.app.UploadCover(context.Background(), env.staff, bytes.NewReader(png))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(url, "https://cdn.example.com/covers/") || !strings.HasSuffix(url, ".png") || len(objects.keys) != 1 {
		t.Fatalf("url = %q keys=%v", url, objects.keys)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

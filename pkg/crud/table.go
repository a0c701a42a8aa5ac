// Package crud drives list screens with create, edit, delete and row actions
// from a declarative schema. Every successful mutation reloads the whole list.
package crud

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotSupported         = errors.New("crud: operation not configured")
	ErrRowNotFound          = errors.New("crud: row not loaded")
	ErrModalClosed          = errors.New("crud: no form is open")
	ErrNoPendingDelete      = errors.New("crud: no delete awaiting confirmation")
	ErrConfirmationRequired = errors.New("crud: confirmation required")
)

const (
	loadFailedMessage   = "Failed to load data"
	submitFailedMessage = "Operation failed"
	deleteFailedMessage = "Delete failed"
	deletePrompt        = "Are you sure you want to delete this item?"
	emptyText           = "No data available"
)

// Row is anything with a stable numeric identity.
type Row interface {
	Identity() int64
}

// ReloadFunc reloads the table; row actions call it after they change data.
type ReloadFunc func(ctx context.Context) error

// MessageFunc extracts a user-facing message from err, or returns fallback.
type MessageFunc func(err error, fallback string) string

// Action is a resource-specific row button.
type Action struct {
	Name  string
	Label string
	// Confirm, when set, is asked before Run.
	Confirm string
	// Input, when set, is the label of a free-text value passed to Run.
	Input          string
	FailureMessage string
	Run            func(ctx context.Context, input string) error
}

// Config describes one resource screen. List is required; Create, Update and Delete
// are optional and hide their controls when nil.
type Config[T Row] struct {
	Title     string
	List      func(ctx context.Context) ([]T, error)
	Create    func(ctx context.Context, p Payload) error
	Update    func(ctx context.Context, id int64, p Payload) error
	Delete    func(ctx context.Context, id int64) error
	Columns   []Column[T]
	Fields    []Field
	Actions   func(row T, reload ReloadFunc) []Action
	Transform func(p Payload) Payload
	Seed      func(row T) Values
	Message   MessageFunc
}

type ListPhase int

const (
	PhaseIdle ListPhase = iota
	PhaseLoading
	PhaseLoaded
)

type ModalMode int

const (
	ModalClosed ModalMode = iota
	ModalCreate
	ModalEdit
)

type pendingAction struct {
	rowID int64
	name  string
}

// Table holds the transient state of one screen. It is not safe for concurrent use;
// the console builds one per request.
type Table[T Row] struct {
	cfg Config[T]

	phase   ListPhase
	rows    []T
	loadErr string

	modal     ModalMode
	editingID int64
	values    Values
	formErr   string

	pendingDelete *int64
	pendingAction *pendingAction
	alert         string
}

func New[T Row](cfg Config[T]) (*Table[T], error) {
	if cfg.List == nil {
		return nil, fmt.Errorf("crud %q: list operation is required", cfg.Title)
	}
	if cfg.Message == nil {
		cfg.Message = func(_ error, fallback string) string { return fallback }
	}
	return &Table[T]{cfg: cfg}, nil
}

// Load fetches the full list. A failed load leaves the table loaded, empty and
// carrying the load error.
func (t *Table[T]) Load(ctx context.Context) error {
	t.phase = PhaseLoading
	rows, err := t.cfg.List(ctx)
	t.phase = PhaseLoaded
	if err != nil {
		t.rows = nil
		t.loadErr = t.cfg.Message(err, loadFailedMessage)
		return err
	}
	t.rows = rows
	t.loadErr = ""
	return nil
}

func (t *Table[T]) Phase() ListPhase  { return t.phase }
func (t *Table[T]) Rows() []T         { return t.rows }
func (t *Table[T]) LoadError() string { return t.loadErr }
func (t *Table[T]) Modal() ModalMode  { return t.modal }
func (t *Table[T]) FormError() string { return t.formErr }
func (t *Table[T]) Alert() string     { return t.alert }

func (t *Table[T]) canCreate() bool { return t.cfg.Create != nil && len(t.cfg.Fields) > 0 }
func (t *Table[T]) canEdit() bool   { return t.cfg.Update != nil && len(t.cfg.Fields) > 0 }

func (t *Table[T]) find(id int64) (T, bool) {
	for _, row := range t.rows {
		if row.Identity() == id {
			return row, true
		}
	}
	var zero T
	return zero, false
}

// OpenCreate opens an empty form.
func (t *Table[T]) OpenCreate() error {
	if !t.canCreate() {
		return ErrNotSupported
	}
	t.modal, t.editingID, t.values, t.formErr = ModalCreate, 0, Values{}, ""
	return nil
}

// OpenEdit opens the form seeded with the loaded row id.
func (t *Table[T]) OpenEdit(id int64) error {
	if !t.canEdit() {
		return ErrNotSupported
	}
	row, ok := t.find(id)
	if !ok {
		return ErrRowNotFound
	}
	seed := t.cfg.Seed
	if seed == nil {
		seed = t.defaultSeed
	}
	t.modal, t.editingID, t.values, t.formErr = ModalEdit, id, seed(row), ""
	return nil
}

// Close discards the open form.
func (t *Table[T]) Close() {
	t.modal, t.editingID, t.values, t.formErr = ModalClosed, 0, nil, ""
}

// Submit validates values and creates or updates. On success the form closes and
// the list reloads; on failure the form stays open with an inline error.
func (t *Table[T]) Submit(ctx context.Context, values Values) error {
	if t.modal == ModalClosed {
		return ErrModalClosed
	}
	t.values, t.formErr = values, ""

	payload, err := BuildPayload(t.cfg.Fields, values)
	if err != nil {
		t.formErr = err.Error()
		return err
	}
	if t.cfg.Transform != nil {
		payload = t.cfg.Transform(payload)
	}
	if t.modal == ModalEdit {
		err = t.cfg.Update(ctx, t.editingID, payload)
	} else {
		err = t.cfg.Create(ctx, payload)
	}
	if err != nil {
		t.formErr = t.cfg.Message(err, submitFailedMessage)
		return err
	}
	t.Close()
	_ = t.Load(ctx)
	return nil
}

// RequestDelete asks for confirmation before deleting id.
func (t *Table[T]) RequestDelete(id int64) error {
	if t.cfg.Delete == nil {
		return ErrNotSupported
	}
	t.pendingDelete = &id
	return nil
}

func (t *Table[T]) CancelDelete() {
	t.pendingDelete = nil
}

// ConfirmDelete deletes the pending id and reloads. Failures raise an alert.
func (t *Table[T]) ConfirmDelete(ctx context.Context) error {
	if t.pendingDelete == nil {
		return ErrNoPendingDelete
	}
	id := *t.pendingDelete
	t.pendingDelete = nil
	if err := t.cfg.Delete(ctx, id); err != nil {
		t.alert = t.cfg.Message(err, deleteFailedMessage)
		return err
	}
	_ = t.Load(ctx)
	return nil
}

// RunAction runs the named action of a loaded row. Actions with a confirmation
// prompt do nothing until confirmed; the prompt is kept pending for the view.
func (t *Table[T]) RunAction(ctx context.Context, id int64, name string, confirmed bool, input string) error {
	row, ok := t.find(id)
	if !ok {
		return ErrRowNotFound
	}
	var action *Action
	for _, a := range t.actionsFor(row) {
		if a.Name == name {
			action = &a
			break
		}
	}
	if action == nil {
		return ErrNotSupported
	}
	if action.Confirm != "" && !confirmed {
		t.pendingAction = &pendingAction{rowID: id, name: name}
		return ErrConfirmationRequired
	}
	t.pendingAction = nil
	if err := action.Run(ctx, input); err != nil {
		fallback := action.FailureMessage
		if fallback == "" {
			fallback = submitFailedMessage
		}
		t.alert = t.cfg.Message(err, fallback)
		return err
	}
	return nil
}

func (t *Table[T]) actionsFor(row T) []Action {
	if t.cfg.Actions == nil {
		return nil
	}
	return t.cfg.Actions(row, t.Load)
}

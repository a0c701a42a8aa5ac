package crud

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type CellKind string

const (
	CellText  CellKind = "text"
	CellImage CellKind = "image"
	CellBadge CellKind = "badge"
)

// Column shows either the row's JSON field named Key or the result of Render.
type Column[T Row] struct {
	Key    string
	Label  string
	Kind   CellKind
	Render func(row T) string
}

type Cell struct {
	Kind  CellKind
	Value string
}

type ActionView struct {
	Name    string
	Label   string
	Confirm string
	Input   string
}

type RowView struct {
	Index     int
	ID        int64
	Cells     []Cell
	Actions   []ActionView
	CanEdit   bool
	CanDelete bool
}

type OptionView struct {
	Label    string
	Value    string
	Selected bool
}

type FieldView struct {
	Name     string
	Label    string
	Kind     Kind
	Value    string
	Required bool
	Options  []OptionView
}

type ModalView struct {
	Title       string
	SubmitLabel string
	Editing     bool
	ID          int64
	Fields      []FieldView
	Error       string
}

type Prompt struct {
	RowID   int64
	Action  string
	Label   string
	Message string
	Input   string
}

// View is everything a template needs to draw the screen.
type View struct {
	Title        string
	Headers      []string
	Rows         []RowView
	Loading      bool
	LoadError    string
	Empty        bool
	EmptyText    string
	EmptyColspan int
	CanCreate    bool
	Modal        *ModalView
	DeletePrompt *Prompt
	ActionPrompt *Prompt
	Alert        string
}

func (t *Table[T]) View() View {
	v := View{
		Title:        t.cfg.Title,
		Loading:      t.phase != PhaseLoaded,
		LoadError:    t.loadErr,
		EmptyText:    emptyText,
		EmptyColspan: len(t.cfg.Columns) + 2,
		CanCreate:    t.canCreate(),
		Alert:        t.alert,
	}
	v.Headers = append(v.Headers, "No")
	for _, col := range t.cfg.Columns {
		v.Headers = append(v.Headers, col.Label)
	}
	v.Headers = append(v.Headers, "Actions")

	for i, row := range t.rows {
		rv := RowView{
			Index:     i + 1,
			ID:        row.Identity(),
			CanEdit:   t.canEdit(),
			CanDelete: t.cfg.Delete != nil,
		}
		fields := jsonFields(row)
		for _, col := range t.cfg.Columns {
			rv.Cells = append(rv.Cells, t.cell(col, row, fields))
		}
		for _, a := range t.actionsFor(row) {
			rv.Actions = append(rv.Actions, ActionView{Name: a.Name, Label: a.Label, Confirm: a.Confirm, Input: a.Input})
			if p := t.pendingAction; p != nil && p.rowID == rv.ID && p.name == a.Name {
				v.ActionPrompt = &Prompt{RowID: rv.ID, Action: a.Name, Label: a.Label, Message: a.Confirm, Input: a.Input}
			}
		}
		v.Rows = append(v.Rows, rv)
	}
	v.Empty = !v.Loading && len(v.Rows) == 0

	if t.pendingDelete != nil {
		v.DeletePrompt = &Prompt{RowID: *t.pendingDelete, Action: "delete", Label: "Delete", Message: deletePrompt}
	}
	if t.modal != ModalClosed {
		v.Modal = t.modalView()
	}
	return v
}

func (t *Table[T]) cell(col Column[T], row T, fields map[string]any) Cell {
	kind := col.Kind
	if kind == "" {
		kind = CellText
	}
	if col.Render != nil {
		return Cell{Kind: kind, Value: col.Render(row)}
	}
	return Cell{Kind: kind, Value: formatValue(fields[col.Key])}
}

func (t *Table[T]) modalView() *ModalView {
	m := &ModalView{Title: "Create New Item", SubmitLabel: "Create Item", Error: t.formErr}
	if t.modal == ModalEdit {
		m.Title, m.SubmitLabel, m.Editing, m.ID = "Edit Item", "Save Changes", true, t.editingID
	}
	for _, f := range t.cfg.Fields {
		s := f.spec()
		value := t.values[s.Name]
		if f.Kind() == KindPassword {
			value = ""
		}
		m.Fields = append(m.Fields, FieldView{
			Name:     s.Name,
			Label:    s.Label,
			Kind:     f.Kind(),
			Value:    value,
			Required: s.Required,
			Options:  f.options(value),
		})
	}
	return m
}

// defaultSeed copies the row's JSON fields into form values.
func (t *Table[T]) defaultSeed(row T) Values {
	fields := jsonFields(row)
	values := make(Values, len(t.cfg.Fields))
	for _, f := range t.cfg.Fields {
		s := f.spec()
		value := formatValue(fields[s.Name])
		if f.Kind() == KindDate && len(value) > len("2006-01-02") {
			value = value[:len("2006-01-02")]
		}
		values[s.Name] = value
	}
	return values
}

func jsonFields(row any) map[string]any {
	raw, err := json.Marshal(row)
	if err != nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil
	}
	return fields
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

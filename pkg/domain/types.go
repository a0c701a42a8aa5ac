package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type UserRole string

const (
	RoleAdmin     UserRole = "admin"
	RoleLibrarian UserRole = "librarian"
	// RoleMember is sent as "user" by the library API.
	RoleMember UserRole = "user"
)

// Label is the human-readable role name shown on profile and user screens.
func (r UserRole) Label() string {
	switch r {
	case RoleAdmin:
		return "Admin"
	case RoleLibrarian:
		return "Librarian"
	case RoleMember:
		return "Member"
	default:
		return string(r)
	}
}

// Staff reports whether the role may open the dashboard.
func (r UserRole) Staff() bool {
	return r == RoleAdmin || r == RoleLibrarian
}

// ManagesUsers reports whether the role may open account management.
func (r UserRole) ManagesUsers() bool {
	return r == RoleAdmin
}

// Roles lists the closed role set in display order.
var Roles = []UserRole{RoleAdmin, RoleLibrarian, RoleMember}

type BorrowStatus string

const (
	BorrowPending  BorrowStatus = "pending"
	BorrowBorrowed BorrowStatus = "borrowed"
	BorrowRejected BorrowStatus = "rejected"
	BorrowReturned BorrowStatus = "returned"
)

// Active reports whether the loan is still open (pending or borrowed).
func (s BorrowStatus) Active() bool {
	return s == BorrowPending || s == BorrowBorrowed
}

type Book struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	Publisher    string    `json:"publisher,omitempty"`
	ISBN         string    `json:"isbn,omitempty"`
	Year         int       `json:"year,omitempty"`
	Stock        int       `json:"stock"`
	Available    int       `json:"available"`
	Description  string    `json:"description,omitempty"`
	CoverImage   string    `json:"coverImage,omitempty"`
	CategoryID   int64     `json:"categoryId,omitempty"`
	CategoryName string    `json:"categoryName,omitempty"`
	UploadedBy   int64     `json:"uploadedBy,omitempty"`
	CreatedAt    Timestamp `json:"createdAt"`
	UpdatedAt    Timestamp `json:"updatedAt"`
}

func (b Book) Identity() int64 { return b.ID }

type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	BookCount   int       `json:"bookCount"`
	CreatedAt   Timestamp `json:"createdAt"`
}

func (c Category) Identity() int64 { return c.ID }

// User is a library account. Passwords are write-only and never decoded.
type User struct {
	ID    int64    `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Role  UserRole `json:"role"`
}

func (u User) Identity() int64 { return u.ID }

type BorrowRecord struct {
	ID             int64        `json:"id"`
	UserID         int64        `json:"userId"`
	BookID         int64        `json:"bookId"`
	BorrowDate     Timestamp    `json:"borrowDate"`
	DueDate        Timestamp    `json:"dueDate"`
	ReturnDate     Timestamp    `json:"returnDate"`
	Status         BorrowStatus `json:"status"`
	ApprovedBy     *int64       `json:"approvedBy"`
	RejectedReason *string      `json:"rejectedReason"`
	ProcessedBy    *int64       `json:"processedBy"`
	Notes          *string      `json:"notes"`
	CreatedAt      Timestamp    `json:"createdAt"`
	UpdatedAt      Timestamp    `json:"updatedAt"`
}

func (b BorrowRecord) Identity() int64 { return b.ID }

// Pagination mirrors the optional pagination block of list responses.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Timestamp is a nullable API time. The zero value encodes as null.
// Values sent without a zone are wall-clock readings; Time then holds that
// reading in UTC and floating is set.
type Timestamp struct {
	time.Time
	floating bool
}

const floatingLayout = "2006-01-02T15:04:05.999999999"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

func NewTimestamp(t time.Time) Timestamp { return Timestamp{Time: t} }

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	if t.floating {
		return json.Marshal(t.Time.Format(floatingLayout))
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// Floating reports whether the API sent the value without a zone.
func (t Timestamp) Floating() bool { return t.floating }

// In returns the time in loc. A floating value keeps its clock reading, so
// "2024-01-01 10:00:00" is 10:00 on 1 January in loc.
func (t Timestamp) In(loc *time.Location) time.Time {
	if !t.floating {
		return t.Time.In(loc)
	}
	y, m, d := t.Time.Date()
	return time.Date(y, m, d, t.Time.Hour(), t.Time.Minute(), t.Time.Second(), t.Time.Nanosecond(), loc)
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTimestamp accepts RFC 3339, SQL datetime and date-only strings.
// Values without a zone come back floating.
func ParseTimestamp(raw string) (Timestamp, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Timestamp{}, nil
	}
	for i, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return Timestamp{Time: parsed, floating: i > 0}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("timestamp: unsupported format %q", raw)
}

// Format returns the time in layout, or fallback when absent.
func (t Timestamp) Format(layout, fallback string) string {
	if t.IsZero() {
		return fallback
	}
	return t.Time.Format(layout)
}

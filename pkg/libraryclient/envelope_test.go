package libraryclient

import (
	"errors"
	"reflect"
	"testing"

	"librarydesk/pkg/domain"
)

func TestDecodeListAcceptsBareAndEnvelopedShapes(t *testing.T) {
	bare := []byte(`[{"id":1,"name":"Fiction"},{"id":2,"name":"History"}]`)
	enveloped := []byte(`{"success":true,"data":[{"id":1,"name":"Fiction"},{"id":2,"name":"History"}],"pagination":{"page":1,"limit":10,"total":2,"totalPages":1}}`)

	fromBare, err := DecodeList[domain.Category](bare)
	if err != nil {
		t.Fatalf("decode bare: %v", err)
	}
	fromEnvelope, err := DecodeList[domain.Category](enveloped)
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if !reflect.DeepEqual(fromBare.Items, fromEnvelope.Items) {
		t.Fatalf("shapes decoded differently: %+v vs %+v", fromBare.Items, fromEnvelope.Items)
	}
	if fromBare.Pagination != nil {
		t.Fatalf("bare list should have no pagination")
	}
	if fromEnvelope.Pagination == nil || fromEnvelope.Pagination.Total != 2 {
		t.Fatalf("expected pagination from envelope, got %+v", fromEnvelope.Pagination)
	}
}

func TestDecodeListNullDataIsEmpty(t *testing.T) {
	list, err := DecodeList[domain.Book]([]byte(`{"success":true,"data":null}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Items == nil || len(list.Items) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", list.Items)
	}
}

func TestDecodeListFailsLoudlyOnUnknownShapes(t *testing.T) {
	cases := map[string]string{
		"object without envelope keys": `{"items":[]}`,
		"data is an object":            `{"success":true,"data":{"id":1}}`,
		"scalar":                       `"nope"`,
		"empty body":                   ``,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeList[domain.Book]([]byte(body)); !errors.Is(err, ErrUnrecognizedShape) {
				t.Fatalf("expected ErrUnrecognizedShape, got %v", err)
			}
		})
	}
}

func TestDecodeListSurfacesUnsuccessfulEnvelope(t *testing.T) {
	_, err := DecodeList[domain.Book]([]byte(`{"success":false,"message":"Category not found"}`))
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Category not found" {
		t.Fatalf("expected APIError with message, got %v", err)
	}
}

func TestDecodeOne(t *testing.T) {
	for name, body := range map[string]string{
		"bare":      `{"id":9,"title":"Dune","author":"Frank Herbert"}`,
		"enveloped": `{"success":true,"data":{"id":9,"title":"Dune","author":"Frank Herbert"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			book, err := DecodeOne[domain.Book]([]byte(body))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if book.ID != 9 || book.Title != "Dune" {
				t.Fatalf("unexpected book %+v", book)
			}
		})
	}
	if _, err := DecodeOne[domain.Book]([]byte(`{"success":true,"data":[]}`)); !errors.Is(err, ErrUnrecognizedShape) {
		t.Fatalf("array data should be rejected, got %v", err)
	}
}

func TestDecodeAck(t *testing.T) {
	if err := decodeAck(nil); err != nil {
		t.Fatalf("empty ack should pass: %v", err)
	}
	if err := decodeAck([]byte(`{"success":true,"message":"Book deleted"}`)); err != nil {
		t.Fatalf("successful ack should pass: %v", err)
	}
	if err := decodeAck([]byte(`{"success":false,"message":"Stock exhausted"}`)); MessageOf(err, "") != "Stock exhausted" {
		t.Fatalf("unsuccessful ack should carry message, got %v", err)
	}
}

func TestCoverURL(t *testing.T) {
	cases := []struct{ ref, want string }{
		{"", PlaceholderCover},
		{"   ", PlaceholderCover},
		{"https://cdn.example.com/a.jpg", "https://cdn.example.com/a.jpg"},
		{"http://old.example.com/b.png", "http://old.example.com/b.png"},
		{"cover-1.jpg", "http://localhost:3000/uploads/cover-1.jpg"},
	}
	for _, tc := range cases {
		if got := CoverURL("http://localhost:3000/", tc.ref); got != tc.want {
			t.Fatalf("CoverURL(%q) = %q, want %q", tc.ref, got, tc.want)
		}
	}
}

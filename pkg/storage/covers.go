package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"librarydesk/internal/util"
)

var (
	ErrCoverTooLarge   = errors.New("storage: cover image is too large")
	ErrCoverNotAnImage = errors.New("storage: cover must be a JPEG, PNG, WebP or GIF image")
	ErrCoverEmpty      = errors.New("storage: cover image is empty")
)

var coverTypes = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}

// CoverUploader validates uploaded cover images and stores them under covers/.
type CoverUploader struct {
	store    ObjectStore
	maxBytes int64
}

func NewCoverUploader(store ObjectStore, maxBytes int64) *CoverUploader {
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	return &CoverUploader{store: store, maxBytes: maxBytes}
}

// Upload sniffs the content type from the bytes, ignoring the client's claim, and
// returns the absolute URL to store as the book's cover reference.
func (u *CoverUploader) Upload(ctx context.Context, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, u.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read cover: %w", err)
	}
	if len(data) == 0 {
		return "", ErrCoverEmpty
	}
	if int64(len(data)) > u.maxBytes {
		return "", ErrCoverTooLarge
	}
	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), coverTypes...) {
		return "", ErrCoverNotAnImage
	}
	key := "covers/" + util.NewID() + mtype.Extension()
	if err := u.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), mtype.String()); err != nil {
		return "", err
	}
	return u.store.URL(key), nil
}

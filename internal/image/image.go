// Package image holds the image and thumbnail domain: upload, storage,
// token addressing, and the tier-driven reconciliation of derived thumbnails.
package image

import (
	"context"
	"errors"
	"time"

	"github.com/tierpix/service/internal/codec"
)

// Image is a user-owned original. Bytes live in object storage under
// ObjectKey; the row carries only metadata and the addressing token.
type Image struct {
	ID        string       `json:"id"`
	OwnerID   string       `json:"ownerId"`
	Token     string       `json:"token"`
	Format    codec.Format `json:"format"`
	ObjectKey string       `json:"-"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Thumbnail is a derived asset owned by exactly one image. Rows are created
// and deleted only by the reconciler; at most one exists per (image, height).
type Thumbnail struct {
	ID        string    `json:"id"`
	ImageID   string    `json:"imageId"`
	Height    int       `json:"height"`
	Token     string    `json:"token"`
	ObjectKey string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// ErrNotFound is returned when an image or thumbnail does not exist.
var ErrNotFound = errors.New("image not found")

// ErrDuplicateHeight is returned when a thumbnail insert collides with an
// existing row for the same (image, height) pair.
var ErrDuplicateHeight = errors.New("thumbnail height already exists for image")

// Store is the persistence surface for images and thumbnails, satisfied by
// *Repository. Delete operations return the object keys of removed rows so
// callers can clean up object storage.
type Store interface {
	CreateImage(ctx context.Context, img *Image) (*Image, error)
	GetImageByToken(ctx context.Context, token string) (*Image, error)
	GetImageByID(ctx context.Context, id string) (*Image, error)
	ListImagesByOwner(ctx context.Context, ownerID string) ([]*Image, error)
	UpdateImageObject(ctx context.Context, id string, format codec.Format, objectKey string) error
	DeleteImage(ctx context.Context, id string) error

	ListThumbnails(ctx context.Context, imageID string) ([]*Thumbnail, error)
	GetThumbnailByToken(ctx context.Context, token string) (*Thumbnail, error)
	CreateThumbnail(ctx context.Context, t *Thumbnail) (*Thumbnail, error)
	DeleteThumbnailsByHeights(ctx context.Context, imageID string, heights []int) ([]string, error)
	DeleteAllThumbnails(ctx context.Context, imageID string) ([]string, error)
}

// LinkSource lists the expiring-link tokens attached to an image, for the
// binary section of the tiered representation. Satisfied by link.Manager.
type LinkSource interface {
	TokensByImage(ctx context.Context, imageID string) ([]string, error)
}

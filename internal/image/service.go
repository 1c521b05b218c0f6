package image

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tierpix/service/internal/codec"
	"github.com/tierpix/service/internal/storage"
	"github.com/tierpix/service/internal/tier"
	"github.com/tierpix/service/internal/token"
	"github.com/tierpix/service/internal/user"
)

// Service orchestrates image lifecycle operations. Every method takes the
// acting user's tier explicitly: nothing here reads ambient request state.
type Service struct {
	store   Store
	objects storage.Storage
	rec     *Reconciler
}

// NewService creates a new image Service.
func NewService(store Store, objects storage.Storage, rec *Reconciler) *Service {
	return &Service{store: store, objects: objects, rec: rec}
}

// Upload stores a new original for the owner, addresses it with a fresh
// token, and reconciles its thumbnail set against the owner's tier.
func (s *Service) Upload(ctx context.Context, owner *user.User, ownerTier *tier.Tier, data []byte, format codec.Format) (*Image, error) {
	tok, err := token.Issue()
	if err != nil {
		return nil, fmt.Errorf("issue image token: %w", err)
	}

	key := fmt.Sprintf("images/%s.%s", uuid.NewString(), format.Ext())
	if err := s.objects.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), format.ContentType()); err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}

	img, err := s.store.CreateImage(ctx, &Image{
		OwnerID:   owner.ID,
		Token:     tok,
		Format:    format,
		ObjectKey: key,
	})
	if err != nil {
		return nil, err
	}

	if err := s.rec.Incremental(ctx, img, ownerTier); err != nil {
		return nil, fmt.Errorf("reconcile new image: %w", err)
	}
	return img, nil
}

// Replace swaps the image's bytes for new ones. The token stays the same;
// every existing thumbnail is discarded and rebuilt from the new source,
// since old derivations cannot be salvaged even for still-permitted heights.
func (s *Service) Replace(ctx context.Context, img *Image, ownerTier *tier.Tier, data []byte, format codec.Format) (*Image, error) {
	key := fmt.Sprintf("images/%s.%s", uuid.NewString(), format.Ext())
	if err := s.objects.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), format.ContentType()); err != nil {
		return nil, fmt.Errorf("upload replacement image: %w", err)
	}

	if err := s.store.UpdateImageObject(ctx, img.ID, format, key); err != nil {
		return nil, err
	}
	oldKey := img.ObjectKey
	img.Format = format
	img.ObjectKey = key

	if err := s.rec.Full(ctx, img, ownerTier); err != nil {
		return nil, fmt.Errorf("reconcile replaced image: %w", err)
	}

	s.rec.removeObjects(ctx, []string{oldKey})
	return img, nil
}

// Delete removes the image, its thumbnails, and its expiring links. Rows go
// by cascade; this also cleans up the stored objects.
func (s *Service) Delete(ctx context.Context, img *Image) error {
	thumbs, err := s.store.ListThumbnails(ctx, img.ID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteImage(ctx, img.ID); err != nil {
		return err
	}

	keys := []string{img.ObjectKey}
	for _, t := range thumbs {
		keys = append(keys, t.ObjectKey)
	}
	s.rec.removeObjects(ctx, keys)
	return nil
}

// GetByToken fetches an image by its opaque token.
func (s *Service) GetByToken(ctx context.Context, tok string) (*Image, error) {
	return s.store.GetImageByToken(ctx, tok)
}

// GetByID fetches an image by its internal ID.
func (s *Service) GetByID(ctx context.Context, id string) (*Image, error) {
	return s.store.GetImageByID(ctx, id)
}

// GetThumbnailByToken fetches a thumbnail by its opaque token.
func (s *Service) GetThumbnailByToken(ctx context.Context, tok string) (*Thumbnail, error) {
	return s.store.GetThumbnailByToken(ctx, tok)
}

// ListByOwner returns the owner's images without reconciling them.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]*Image, error) {
	return s.store.ListImagesByOwner(ctx, ownerID)
}

// Thumbnails returns the image's current thumbnails.
func (s *Service) Thumbnails(ctx context.Context, img *Image) ([]*Thumbnail, error) {
	return s.store.ListThumbnails(ctx, img.ID)
}

// Reconcile runs an incremental reconciliation pass for the image against
// the given tier. Called on every read path before authorization, so a
// just-revoked height 404s rather than serving stale bytes.
func (s *Service) Reconcile(ctx context.Context, img *Image, t *tier.Tier) error {
	return s.rec.Incremental(ctx, img, t)
}

// OriginalBytes returns the image's stored bytes.
func (s *Service) OriginalBytes(ctx context.Context, img *Image) ([]byte, error) {
	data, err := storage.ReadAll(ctx, s.objects, img.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("read image object: %w", err)
	}
	return data, nil
}

// ThumbnailBytes returns a thumbnail's stored bytes.
func (s *Service) ThumbnailBytes(ctx context.Context, t *Thumbnail) ([]byte, error) {
	data, err := storage.ReadAll(ctx, s.objects, t.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("read thumbnail object: %w", err)
	}
	return data, nil
}

package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tierpix/service/internal/codec"
	"github.com/tierpix/service/internal/storage"
	"github.com/tierpix/service/internal/tier"
	"github.com/tierpix/service/internal/token"
)

// Diff computes the symmetric difference between the heights a tier requires
// and the heights that currently exist: toCreate = required − existing,
// toDelete = existing − required. Results are sorted for deterministic
// processing; callers must not rely on any particular order.
func Diff(required, existing map[int]struct{}) (toCreate, toDelete []int) {
	for h := range required {
		if _, ok := existing[h]; !ok {
			toCreate = append(toCreate, h)
		}
	}
	for h := range existing {
		if _, ok := required[h]; !ok {
			toDelete = append(toDelete, h)
		}
	}
	sort.Ints(toCreate)
	sort.Ints(toDelete)
	return toCreate, toDelete
}

// Reconciler keeps an image's thumbnail set in sync with its owner's tier.
// Incremental runs on every read path (the tier may have changed since the
// last access); Full runs only when the source bytes are replaced.
type Reconciler struct {
	store   Store
	objects storage.Storage
	codec   codec.Codec

	// concurrency caps parallel codec invocations within one pass.
	concurrency int

	// locks serializes reconciliation per image. Two concurrent reads of the
	// same image would otherwise both compute the same toCreate set and race
	// on insertion; the DB unique constraint backstops other processes.
	locks sync.Map
}

// NewReconciler creates a Reconciler.
func NewReconciler(store Store, objects storage.Storage, c codec.Codec, concurrency int) *Reconciler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Reconciler{store: store, objects: objects, codec: c, concurrency: concurrency}
}

// Incremental closes the gap between the tier's required heights and the
// image's existing thumbnails. Idempotent: a second call with no intervening
// tier or image change performs no mutation. A nil tier requires nothing,
// so every existing thumbnail is removed.
func (r *Reconciler) Incremental(ctx context.Context, img *Image, t *tier.Tier) error {
	unlock := r.lock(img.ID)
	defer unlock()
	return r.reconcile(ctx, img, t)
}

// Full discards every existing thumbnail before recreating the required set.
// Used after a byte replacement: surviving heights would still be derived
// from the old bytes and cannot be kept.
func (r *Reconciler) Full(ctx context.Context, img *Image, t *tier.Tier) error {
	unlock := r.lock(img.ID)
	defer unlock()

	keys, err := r.store.DeleteAllThumbnails(ctx, img.ID)
	if err != nil {
		return err
	}
	r.removeObjects(ctx, keys)

	return r.reconcile(ctx, img, t)
}

// reconcile runs one diff-and-apply pass. Caller must hold the image lock.
func (r *Reconciler) reconcile(ctx context.Context, img *Image, t *tier.Tier) error {
	existing, err := r.store.ListThumbnails(ctx, img.ID)
	if err != nil {
		return err
	}
	existingSet := make(map[int]struct{}, len(existing))
	for _, th := range existing {
		existingSet[th.Height] = struct{}{}
	}

	var required map[int]struct{}
	if t != nil {
		required = t.HeightSet()
	}

	toCreate, toDelete := Diff(required, existingSet)

	if len(toCreate) > 0 {
		if err := r.createThumbnails(ctx, img, toCreate); err != nil {
			return err
		}
	}

	keys, err := r.store.DeleteThumbnailsByHeights(ctx, img.ID, toDelete)
	if err != nil {
		return err
	}
	r.removeObjects(ctx, keys)
	return nil
}

// createThumbnails resizes the source once per height, in parallel. Heights
// are independent: a codec failure on one is logged and skipped while the
// others proceed, and nothing already created is rolled back.
func (r *Reconciler) createThumbnails(ctx context.Context, img *Image, heights []int) error {
	source, err := storage.ReadAll(ctx, r.objects, img.ObjectKey)
	if err != nil {
		return fmt.Errorf("read source image %s: %w", img.ID, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, height := range heights {
		g.Go(func() error {
			data, err := r.codec.Resize(source, height, img.Format)
			if err != nil {
				log.Printf("codec: resize image %s to %d failed: %v", img.ID, height, err)
				return nil
			}
			if err := r.persistThumbnail(gctx, img, height, data); err != nil {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Reconciler) persistThumbnail(ctx context.Context, img *Image, height int, data []byte) error {
	tok, err := token.Issue()
	if err != nil {
		return fmt.Errorf("issue thumbnail token: %w", err)
	}

	key := fmt.Sprintf("thumbs/%s.%s", uuid.NewString(), img.Format.Ext())
	if err := r.objects.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), img.Format.ContentType()); err != nil {
		return fmt.Errorf("upload thumbnail: %w", err)
	}

	_, err = r.store.CreateThumbnail(ctx, &Thumbnail{
		ImageID:   img.ID,
		Height:    height,
		Token:     tok,
		ObjectKey: key,
	})
	if errors.Is(err, ErrDuplicateHeight) {
		// Another writer beat us to this height; discard our copy.
		r.removeObjects(ctx, []string{key})
		return nil
	}
	return err
}

// removeObjects deletes storage objects, logging failures. Orphaned objects
// are harmless: rows are gone, so nothing addresses them anymore.
func (r *Reconciler) removeObjects(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := r.objects.Delete(ctx, key); err != nil {
			log.Printf("storage: delete object %q failed: %v", key, err)
		}
	}
}

func (r *Reconciler) lock(imageID string) func() {
	mu, _ := r.locks.LoadOrStore(imageID, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

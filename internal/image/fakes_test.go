package image

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"

	"github.com/tierpix/service/internal/codec"
)

// fakeStore is an in-memory Store for exercising the reconciler and service
// without a database. It enforces the same (image, height) uniqueness the
// real schema does.
type fakeStore struct {
	mu     sync.Mutex
	seq    int
	images map[string]*Image     // by ID
	thumbs map[string]*Thumbnail // by ID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		images: make(map[string]*Image),
		thumbs: make(map[string]*Thumbnail),
	}
}

func (f *fakeStore) nextID(prefix string) string {
	f.seq++
	return prefix + "-" + strconv.Itoa(f.seq)
}

func (f *fakeStore) CreateImage(_ context.Context, img *Image) (*Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *img
	cp.ID = f.nextID("img")
	f.images[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeStore) GetImageByToken(_ context.Context, token string) (*Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, img := range f.images {
		if img.Token == token {
			cp := *img
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) GetImageByID(_ context.Context, id string) (*Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.images[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *img
	return &cp, nil
}

func (f *fakeStore) ListImagesByOwner(_ context.Context, ownerID string) ([]*Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Image
	for _, img := range f.images {
		if img.OwnerID == ownerID {
			cp := *img
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) UpdateImageObject(_ context.Context, id string, format codec.Format, objectKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.images[id]
	if !ok {
		return ErrNotFound
	}
	img.Format = format
	img.ObjectKey = objectKey
	return nil
}

func (f *fakeStore) DeleteImage(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.images[id]; !ok {
		return ErrNotFound
	}
	delete(f.images, id)
	for tid, t := range f.thumbs {
		if t.ImageID == id {
			delete(f.thumbs, tid)
		}
	}
	return nil
}

func (f *fakeStore) ListThumbnails(_ context.Context, imageID string) ([]*Thumbnail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Thumbnail
	for _, t := range f.thumbs {
		if t.ImageID == imageID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Height < out[j].Height })
	return out, nil
}

func (f *fakeStore) GetThumbnailByToken(_ context.Context, token string) (*Thumbnail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.thumbs {
		if t.Token == token {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) CreateThumbnail(_ context.Context, t *Thumbnail) (*Thumbnail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.thumbs {
		if existing.ImageID == t.ImageID && existing.Height == t.Height {
			return nil, ErrDuplicateHeight
		}
	}
	cp := *t
	cp.ID = f.nextID("thumb")
	f.thumbs[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeStore) DeleteThumbnailsByHeights(_ context.Context, imageID string, heights []int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[int]struct{}, len(heights))
	for _, h := range heights {
		want[h] = struct{}{}
	}
	var keys []string
	for id, t := range f.thumbs {
		if t.ImageID != imageID {
			continue
		}
		if _, ok := want[t.Height]; ok {
			keys = append(keys, t.ObjectKey)
			delete(f.thumbs, id)
		}
	}
	return keys, nil
}

func (f *fakeStore) DeleteAllThumbnails(_ context.Context, imageID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for id, t := range f.thumbs {
		if t.ImageID == imageID {
			keys = append(keys, t.ObjectKey)
			delete(f.thumbs, id)
		}
	}
	return keys, nil
}

// memStorage is an in-memory object store.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string][]byte)}
}

func (m *memStorage) Upload(_ context.Context, key string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStorage) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// stampCodec produces deterministic "resized" bytes that embed the source
// content and target dimension, so tests can tell which source a thumbnail
// was derived from. Heights listed in fail return an error.
type stampCodec struct {
	fail map[int]bool
}

func (c *stampCodec) Resize(data []byte, maxDim int, _ codec.Format) ([]byte, error) {
	if c.fail[maxDim] {
		return nil, fmt.Errorf("resize to %d: synthetic codec failure", maxDim)
	}
	return []byte(fmt.Sprintf("%s@%d", data, maxDim)), nil
}

package link

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/tierpix/service/internal/codec"
	"github.com/tierpix/service/internal/image"
	"github.com/tierpix/service/internal/middleware"
	"github.com/tierpix/service/internal/tier"
	"github.com/tierpix/service/internal/user"
)

// fakeImageStore is a minimal in-memory image.Store for wiring a real
// image.Service behind the link handlers.
type fakeImageStore struct {
	mu     sync.Mutex
	seq    int
	images map[string]*image.Image
	thumbs map[string]*image.Thumbnail
}

func newFakeImageStore() *fakeImageStore {
	return &fakeImageStore{
		images: make(map[string]*image.Image),
		thumbs: make(map[string]*image.Thumbnail),
	}
}

func (f *fakeImageStore) nextID(prefix string) string {
	f.seq++
	return prefix + "-" + strconv.Itoa(f.seq)
}

func (f *fakeImageStore) CreateImage(_ context.Context, img *image.Image) (*image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *img
	cp.ID = f.nextID("img")
	f.images[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeImageStore) GetImageByToken(_ context.Context, token string) (*image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, img := range f.images {
		if img.Token == token {
			cp := *img
			return &cp, nil
		}
	}
	return nil, image.ErrNotFound
}

func (f *fakeImageStore) GetImageByID(_ context.Context, id string) (*image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.images[id]
	if !ok {
		return nil, image.ErrNotFound
	}
	cp := *img
	return &cp, nil
}

func (f *fakeImageStore) ListImagesByOwner(_ context.Context, ownerID string) ([]*image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*image.Image
	for _, img := range f.images {
		if img.OwnerID == ownerID {
			cp := *img
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeImageStore) UpdateImageObject(_ context.Context, id string, format codec.Format, objectKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.images[id]
	if !ok {
		return image.ErrNotFound
	}
	img.Format = format
	img.ObjectKey = objectKey
	return nil
}

func (f *fakeImageStore) DeleteImage(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.images[id]; !ok {
		return image.ErrNotFound
	}
	delete(f.images, id)
	return nil
}

func (f *fakeImageStore) ListThumbnails(_ context.Context, imageID string) ([]*image.Thumbnail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*image.Thumbnail
	for _, t := range f.thumbs {
		if t.ImageID == imageID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Height < out[j].Height })
	return out, nil
}

func (f *fakeImageStore) GetThumbnailByToken(_ context.Context, token string) (*image.Thumbnail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.thumbs {
		if t.Token == token {
			cp := *t
			return &cp, nil
		}
	}
	return nil, image.ErrNotFound
}

func (f *fakeImageStore) CreateThumbnail(_ context.Context, t *image.Thumbnail) (*image.Thumbnail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.thumbs {
		if existing.ImageID == t.ImageID && existing.Height == t.Height {
			return nil, image.ErrDuplicateHeight
		}
	}
	cp := *t
	cp.ID = f.nextID("thumb")
	f.thumbs[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeImageStore) DeleteThumbnailsByHeights(_ context.Context, imageID string, heights []int) ([]string, error) {
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

func (f *fakeImageStore) DeleteAllThumbnails(_ context.Context, imageID string) ([]string, error) {
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

// fakeObjectStore is an in-memory storage.Storage.
type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) Upload(_ context.Context, key string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeObjectStore) Download(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjectStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

// passCodec returns the source bytes unchanged at any dimension.
type passCodec struct{}

func (passCodec) Resize(data []byte, _ int, _ codec.Format) ([]byte, error) {
	return data, nil
}

// fakeUserStore is a minimal in-memory user.Store.
type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*user.User
}

func (f *fakeUserStore) Create(_ context.Context, username, hash string, tierID *int, linkDuration int) (*user.User, error) {
	return nil, user.ErrAlreadyExists
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) GetByUsername(_ context.Context, username string) (*user.User, error) {
	return nil, user.ErrNotFound
}

func (f *fakeUserStore) SetTier(_ context.Context, id string, tierID *int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.TierID = tierID
	return nil
}

func (f *fakeUserStore) SetLinkDuration(_ context.Context, id string, seconds int) error {
	return nil
}

// fakeTierStore serves the seeded catalog.
type fakeTierStore struct {
	tiers map[int]*tier.Tier
}

func (f *fakeTierStore) GetByID(_ context.Context, id int) (*tier.Tier, error) {
	t, ok := f.tiers[id]
	if !ok {
		return nil, tier.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTierStore) GetByName(_ context.Context, name string) (*tier.Tier, error) {
	for _, t := range f.tiers {
		if t.Name == name {
			cp := *t
			return &cp, nil
		}
	}
	return nil, tier.ErrNotFound
}

func enterpriseTier() *tier.Tier {
	return &tier.Tier{ID: 3, Name: tier.Enterprise, OriginalAccess: true, Heights: []int{200, 400}}
}

func premiumTestTier() *tier.Tier {
	return &tier.Tier{ID: 2, Name: tier.Premium, OriginalAccess: true, Heights: []int{200, 400}}
}

type handlerRig struct {
	links  *fakeStore
	mgr    *Manager
	images *image.Service
	users  *fakeUserStore
	now    time.Time
	mux    *chi.Mux
}

func newHandlerRig(t *testing.T) *handlerRig {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	links := newFakeStore()
	mgr := newTestManager(links, now)

	imgStore := newFakeImageStore()
	objects := newFakeObjectStore()
	rec := image.NewReconciler(imgStore, objects, passCodec{}, 2)
	images := image.NewService(imgStore, objects, rec)

	users := &fakeUserStore{users: make(map[string]*user.User)}
	tiers := &fakeTierStore{tiers: map[int]*tier.Tier{
		premiumTestTier().ID: premiumTestTier(),
		enterpriseTier().ID:  enterpriseTier(),
	}}

	h := NewHandler(mgr, images, user.NewService(users), tier.NewCatalog(tiers), image.NewURLBuilder("http://localhost:8080"))

	mux := chi.NewRouter()
	mux.Get("/images/{token}/generate", h.Generate)
	mux.Get("/binary/{token}", h.GetBinary)

	return &handlerRig{links: links, mgr: mgr, images: images, users: users, now: now, mux: mux}
}

func (hr *handlerRig) addUser(id string, tierID int) *user.User {
	hr.users.mu.Lock()
	defer hr.users.mu.Unlock()
	tid := tierID
	u := &user.User{ID: id, Username: id, TierID: &tid, LinkDuration: user.MinLinkDuration}
	hr.users.users[id] = u
	return u
}

func (hr *handlerRig) upload(t *testing.T, ownerID string, tr *tier.Tier, data string) *image.Image {
	t.Helper()
	img, err := hr.images.Upload(context.Background(), &user.User{ID: ownerID}, tr, []byte(data), codec.PNG)
	require.NoError(t, err)
	return img
}

func (hr *handlerRig) get(userID, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, userID))
	res := httptest.NewRecorder()
	hr.mux.ServeHTTP(res, req)
	return res
}

func TestGenerateReturnsTokenAndURL(t *testing.T) {
	hr := newHandlerRig(t)
	hr.addUser("u1", enterpriseTier().ID)
	img := hr.upload(t, "u1", enterpriseTier(), "src")

	res := hr.get("u1", "/images/"+img.Token+"/generate")
	require.Equal(t, http.StatusOK, res.Code)

	var body struct {
		Data struct {
			Token string `json:"token"`
			URL   string `json:"url"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.NotEmpty(t, body.Data.Token)
	require.Equal(t, "http://localhost:8080/binary/"+body.Data.Token, body.Data.URL)
}

func TestGenerateWithoutEnterpriseIsForbidden(t *testing.T) {
	hr := newHandlerRig(t)
	hr.addUser("u1", premiumTestTier().ID)
	img := hr.upload(t, "u1", premiumTestTier(), "src")

	res := hr.get("u1", "/images/"+img.Token+"/generate")
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestGenerateForeignImageIsNotFound(t *testing.T) {
	hr := newHandlerRig(t)
	hr.addUser("u1", enterpriseTier().ID)
	hr.addUser("u2", enterpriseTier().ID)
	img := hr.upload(t, "u1", enterpriseTier(), "src")

	res := hr.get("u2", "/images/"+img.Token+"/generate")
	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestGetBinaryServesOriginal(t *testing.T) {
	hr := newHandlerRig(t)
	owner := hr.addUser("u1", enterpriseTier().ID)
	img := hr.upload(t, "u1", enterpriseTier(), "src")
	l, err := hr.mgr.Generate(context.Background(), img.ID, owner)
	require.NoError(t, err)

	res := hr.get("u1", "/binary/"+l.Token)

	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "image/png", res.Header().Get("Content-Type"))
	require.Equal(t, "src", res.Body.String())
}

func TestGetBinaryExpiredLinkIsNotFound(t *testing.T) {
	hr := newHandlerRig(t)
	hr.addUser("u1", enterpriseTier().ID)
	img := hr.upload(t, "u1", enterpriseTier(), "src")

	stale, err := hr.links.Create(context.Background(), &ExpiringLink{
		ImageID:    img.ID,
		Token:      "stale-token",
		ValidUntil: hr.now.Add(-time.Minute),
	})
	require.NoError(t, err)

	// The read that discovers the expiry deletes the link.
	res := hr.get("u1", "/binary/"+stale.Token)
	require.Equal(t, http.StatusNotFound, res.Code)

	_, err = hr.links.GetByToken(context.Background(), stale.Token)
	require.ErrorIs(t, err, ErrNotFound)

	res = hr.get("u1", "/binary/"+stale.Token)
	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestGetBinaryWithoutEnterpriseIsForbidden(t *testing.T) {
	hr := newHandlerRig(t)
	owner := hr.addUser("u1", premiumTestTier().ID)
	img := hr.upload(t, "u1", premiumTestTier(), "src")

	l, err := hr.mgr.Generate(context.Background(), img.ID, owner)
	require.NoError(t, err)

	res := hr.get("u1", "/binary/"+l.Token)
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestGetBinaryForeignOwnerIsNotFound(t *testing.T) {
	hr := newHandlerRig(t)
	owner := hr.addUser("u1", enterpriseTier().ID)
	hr.addUser("u2", enterpriseTier().ID)
	img := hr.upload(t, "u1", enterpriseTier(), "src")

	l, err := hr.mgr.Generate(context.Background(), img.ID, owner)
	require.NoError(t, err)

	res := hr.get("u2", "/binary/"+l.Token)
	require.Equal(t, http.StatusNotFound, res.Code)
}

package link

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tierpix/service/internal/user"
)

type fakeStore struct {
	mu    sync.Mutex
	seq   int
	links map[string]*ExpiringLink // by ID
}

func newFakeStore() *fakeStore {
	return &fakeStore{links: make(map[string]*ExpiringLink)}
}

func (f *fakeStore) Create(_ context.Context, l *ExpiringLink) (*ExpiringLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	cp := *l
	cp.ID = "link-" + strconv.Itoa(f.seq)
	cp.CreatedAt = time.Now()
	f.links[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeStore) GetByToken(_ context.Context, token string) (*ExpiringLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.links {
		if l.Token == token {
			cp := *l
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) Delete(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.links[id]; !ok {
		return false, nil
	}
	delete(f.links, id)
	return true, nil
}

func (f *fakeStore) TokensByImage(_ context.Context, imageID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var tokens []string
	for _, l := range f.links {
		if l.ImageID == imageID {
			tokens = append(tokens, l.Token)
		}
	}
	sort.Strings(tokens)
	return tokens, nil
}

func newTestManager(store *fakeStore, now time.Time) *Manager {
	m := NewManager(store)
	m.now = func() time.Time { return now }
	return m
}

func TestGenerateUsesOwnerLinkDuration(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := newTestManager(newFakeStore(), now)

	owner := &user.User{ID: "u1", LinkDuration: 600}
	l, err := m.Generate(context.Background(), "img-1", owner)
	require.NoError(t, err)
	require.Equal(t, now.Add(600*time.Second), l.ValidUntil)
	require.NotEmpty(t, l.Token)
}

func TestGenerateAllowsMultipleLiveLinks(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, time.Now())
	owner := &user.User{ID: "u1", LinkDuration: 300}

	first, err := m.Generate(context.Background(), "img-1", owner)
	require.NoError(t, err)
	second, err := m.Generate(context.Background(), "img-1", owner)
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)

	tokens, err := m.TokensByImage(context.Background(), "img-1")
	require.NoError(t, err)
	require.Len(t, tokens, 2)
}

func TestResolveValidLinkDoesNotMutate(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	m := newTestManager(store, now)

	l, err := m.Generate(context.Background(), "img-1", &user.User{ID: "u1", LinkDuration: 300})
	require.NoError(t, err)

	got, err := m.Resolve(context.Background(), l.Token)
	require.NoError(t, err)
	require.Equal(t, l.Token, got.Token)

	// Still resolvable: a valid read deletes nothing.
	_, err = m.Resolve(context.Background(), l.Token)
	require.NoError(t, err)
}

func TestResolveExpiredLinkDeletesIt(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	m := newTestManager(store, now)

	l, err := m.Generate(context.Background(), "img-1", &user.User{ID: "u1", LinkDuration: 300})
	require.NoError(t, err)

	// Move past validity: the first read reports expiry and removes the row.
	m.now = func() time.Time { return now.Add(301 * time.Second) }
	_, err = m.Resolve(context.Background(), l.Token)
	require.ErrorIs(t, err, ErrExpired)

	// The token is gone for good.
	_, err = m.Resolve(context.Background(), l.Token)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentExpiryAllReadersSeeGone(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	m := newTestManager(store, now)

	l, err := m.Generate(context.Background(), "img-1", &user.User{ID: "u1", LinkDuration: 300})
	require.NoError(t, err)
	m.now = func() time.Time { return now.Add(time.Hour) }

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < len(errs); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Resolve(context.Background(), l.Token)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.True(t, IsGone(err), "expected gone, got %v", err)
	}
}

func TestExpiredUnreadLinksStayListed(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	m := newTestManager(store, now)

	_, err := m.Generate(context.Background(), "img-1", &user.User{ID: "u1", LinkDuration: 300})
	require.NoError(t, err)
	m.now = func() time.Time { return now.Add(time.Hour) }

	// Expiry is lazy: nothing has read the link yet, so it still exists.
	tokens, err := m.TokensByImage(context.Background(), "img-1")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
}

package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/naveenchin/tt-backend/pkgs/events"
	"github.com/naveenchin/tt-backend/pkgs/fault"
	redislib "github.com/naveenchin/tt-backend/pkgs/redis"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	adds int
	err  error
}

func (m *memStore) Add(ctx context.Context, data []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.adds++
	return fmt.Sprintf("bafy%d", m.adds), nil
}

type eventLog struct {
	events []*events.Event
}

func (l *eventLog) Publish(ctx context.Context, evt *events.Event) error {
	l.events = append(l.events, evt)
	return nil
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := NewCache(nil, redislib.NewKeyBuilder("test", ""), 8, 0)
	require.NoError(t, err)
	return c
}

func TestStoreResolverReturnsOneRefPerBlob(t *testing.T) {
	store := &memStore{}
	r := NewStoreResolver(store, nil)

	refs, err := r.Resolve(context.Background(), []Blob{
		{Name: "a.jpg", Data: []byte("a")},
		{Name: "b.jpg", Data: []byte("b")},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"bafy1", "bafy2"}, refs)
	require.Equal(t, "bafy1,bafy2", JoinReferences(refs))
}

func TestStoreResolverSkipsKnownContent(t *testing.T) {
	store := &memStore{}
	cache := newTestCache(t)
	r := NewStoreResolver(store, cache)
	ctx := context.Background()

	first, err := r.Resolve(ctx, []Blob{{Name: "a.jpg", Data: []byte("same")}})
	require.NoError(t, err)
	second, err := r.Resolve(ctx, []Blob{{Name: "copy.jpg", Data: []byte("same")}})
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 1, store.adds)
	require.Equal(t, 1, cache.Len())
}

func TestStoreResolverRejectsEmptyBlob(t *testing.T) {
	store := &memStore{}
	r := NewStoreResolver(store, nil)

	_, err := r.Resolve(context.Background(), []Blob{{Name: "empty.png"}})
	require.Equal(t, fault.Validation, fault.KindOf(err))
	require.Zero(t, store.adds)
}

func TestStoreResolverClassifiesStoreFailure(t *testing.T) {
	r := NewStoreResolver(&memStore{err: errors.New("dial tcp: connection refused")}, nil)

	_, err := r.Resolve(context.Background(), []Blob{{Name: "a", Data: []byte("x")}})
	require.Equal(t, fault.Connectivity, fault.KindOf(err))
}

func TestNoMediaNoReferences(t *testing.T) {
	refs, err := NewStoreResolver(&memStore{}, nil).Resolve(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, refs)
	require.Equal(t, "", JoinReferences(refs))
}

func TestDigestResolver(t *testing.T) {
	refs, err := DigestResolver{}.Resolve(context.Background(), []Blob{{Name: "a", Data: []byte("abc")}})
	require.NoError(t, err)
	require.Equal(t, []string{"sha256-ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"}, refs)
}

func TestStoreResolverReportsNewlyStoredBlobs(t *testing.T) {
	sink := &eventLog{}
	r := NewStoreResolver(&memStore{}, newTestCache(t)).WithSink(sink)
	ctx := context.Background()

	_, err := r.Resolve(ctx, []Blob{{Name: "label.png", ContentType: "image/png", Data: []byte("png")}})
	require.NoError(t, err)
	_, err = r.Resolve(ctx, []Blob{{Name: "again.png", Data: []byte("png")}})
	require.NoError(t, err)

	require.Len(t, sink.events, 1)
	require.Equal(t, events.EventMediaStored, sink.events[0].Type)

	var payload events.MediaStoredPayload
	require.NoError(t, json.Unmarshal(sink.events[0].Payload, &payload))
	require.Equal(t, events.MediaStoredPayload{Name: "label.png", ContentType: "image/png", Size: 3, Reference: "bafy1"}, payload)
}

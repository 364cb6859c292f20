package schema

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheInitAndSnapshot(t *testing.T) {
	cache := NewCache(func(ctx context.Context) (*Set, error) {
		ds, err := Parse([]byte(placesDoc))
		if err != nil {
			return nil, err
		}
		return NewSet(ds)
	})
	require.NoError(t, cache.Init(context.Background()))

	set := cache.Snapshot()
	require.NotNil(t, set)
	_, err := set.Table("places", "countries")
	assert.NoError(t, err)
}

func TestCacheInitFailure(t *testing.T) {
	cache := NewCache(func(ctx context.Context) (*Set, error) {
		return nil, errors.New("boom")
	})
	err := cache.Init(context.Background())
	assert.ErrorContains(t, err, "initial load")
}

func TestCacheReloadNotifiesWatcher(t *testing.T) {
	cache := NewCache(func(ctx context.Context) (*Set, error) {
		ds, err := Parse([]byte(placesDoc))
		if err != nil {
			return nil, err
		}
		return NewSet(ds)
	})
	require.NoError(t, cache.Init(context.Background()))

	// Drain the initial notification, then reload.
	select {
	case <-cache.Watch():
	case <-time.After(time.Second):
		t.Fatal("no notification after Init")
	}
	require.NoError(t, cache.Reload(context.Background()))

	select {
	case set := <-cache.Watch():
		assert.Same(t, cache.Snapshot(), set)
	case <-time.After(time.Second):
		t.Fatal("no notification after Reload")
	}
}

func TestCacheHandler(t *testing.T) {
	cache := NewCache(func(ctx context.Context) (*Set, error) {
		ds, err := Parse([]byte(placesDoc))
		if err != nil {
			return nil, err
		}
		return NewSet(ds)
	})
	require.NoError(t, cache.Init(context.Background()))

	mux := http.NewServeMux()
	cache.Handler(mux, "/_schemas")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/_schemas", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var payload map[string]*Dataset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Contains(t, payload, "places")
	assert.Equal(t, "places", payload["places"].ID)
}

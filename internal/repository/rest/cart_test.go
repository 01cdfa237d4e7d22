package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/cartsync/internal/domain"
	apperrors "github.com/utafrali/cartsync/pkg/errors"
	"github.com/utafrali/cartsync/pkg/httpclient"
	"github.com/utafrali/cartsync/pkg/logger"
)

type recorded struct {
	Method string
	Path   string
	Body   map[string]any
}

func newTestRepo(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*CartRepository, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{Method: r.Method, Path: r.URL.Path}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &rec.Body)
		}
		calls = append(calls, rec)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client := httpclient.New(httpclient.Config{
		Timeout:         2 * time.Second,
		MaxRetries:      1,
		RetryWaitMin:    time.Millisecond,
		RetryWaitMax:    2 * time.Millisecond,
		MaxConnsPerHost: 4,
	})
	return NewCartRepository(client, srv.URL+"/api/", logger.Discard()), &calls
}

func writeBody(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestGetByOwner_Paths(t *testing.T) {
	repo, calls := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusOK, `{"data":{"_id":"c1","items":[]}}`)
	})

	cart, err := repo.GetByOwner(context.Background(), domain.Owner{Kind: domain.OwnerUser, ID: "u 1"})
	require.NoError(t, err)
	assert.Equal(t, "c1", cart.ID)

	_, err = repo.GetByOwner(context.Background(), domain.Owner{Kind: domain.OwnerGuest, ID: "g-1"})
	require.NoError(t, err)

	require.Len(t, *calls, 2)
	assert.Equal(t, "/api/carts/user/u 1", (*calls)[0].Path)
	assert.Equal(t, "/api/carts/session/g-1", (*calls)[1].Path)
}

func TestGetByOwner_NotFound(t *testing.T) {
	repo, _ := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusNotFound, `{"message":"Cart not found"}`)
	})

	_, err := repo.GetByOwner(context.Background(), domain.Owner{Kind: domain.OwnerUser, ID: "u1"})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestGetByOwner_NullBodyIsNotFound(t *testing.T) {
	repo, _ := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusOK, `{"data":null}`)
	})

	_, err := repo.GetByOwner(context.Background(), domain.Owner{Kind: domain.OwnerGuest, ID: "g1"})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestGetByOwner_UnknownKind(t *testing.T) {
	repo, calls := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := repo.GetByOwner(context.Background(), domain.Owner{ID: "x"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Empty(t, *calls)
}

func TestCreate_Bodies(t *testing.T) {
	repo, calls := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusCreated, `{"_id":"c-new","items":[]}`)
	})

	cart, err := repo.Create(context.Background(), domain.Owner{Kind: domain.OwnerGuest, ID: "g1"})
	require.NoError(t, err)
	assert.Equal(t, "c-new", cart.ID)

	_, err = repo.Create(context.Background(), domain.Owner{Kind: domain.OwnerUser, ID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, recorded{Method: http.MethodPost, Path: "/api/carts", Body: map[string]any{"sessionId": "g1"}}, (*calls)[0])
	assert.Equal(t, map[string]any{"userId": "u1"}, (*calls)[1].Body)
}

func TestCreate_WithoutCartFails(t *testing.T) {
	repo, _ := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusCreated, `{"message":"ok"}`)
	})
	_, err := repo.Create(context.Background(), domain.Owner{Kind: domain.OwnerGuest, ID: "g1"})
	assert.Error(t, err)
}

func TestItemMutations(t *testing.T) {
	repo, calls := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusOK, `{"cart":{"_id":"c1","items":[{"_id":"li1","variantId":"v1","quantity":3,"price":"1000"}]}}`)
	})

	cart, err := repo.AddItem(context.Background(), "c1", "v1", 2)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)

	_, err = repo.RemoveItem(context.Background(), "c1", "v1", 1)
	require.NoError(t, err)

	assert.Equal(t, recorded{Method: http.MethodPost, Path: "/api/carts/c1/items",
		Body: map[string]any{"variantId": "v1", "quantity": float64(2)}}, (*calls)[0])
	assert.Equal(t, recorded{Method: http.MethodDelete, Path: "/api/carts/c1/items",
		Body: map[string]any{"variantId": "v1", "quantity": float64(1)}}, (*calls)[1])
}

func TestClearAndDelete(t *testing.T) {
	repo, calls := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, repo.Clear(context.Background(), "c1", "u1"))
	require.NoError(t, repo.Clear(context.Background(), "c1", ""))
	require.NoError(t, repo.Delete(context.Background(), "c1"))

	assert.Equal(t, recorded{Method: http.MethodPost, Path: "/api/carts/c1/clear", Body: map[string]any{"userId": "u1"}}, (*calls)[0])
	assert.Empty(t, (*calls)[1].Body)
	assert.Equal(t, recorded{Method: http.MethodDelete, Path: "/api/carts/c1"}, (*calls)[2])
}

func TestMutation_NotRetried(t *testing.T) {
	repo, calls := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusBadGateway, `{"message":"upstream"}`)
	})

	_, err := repo.AddItem(context.Background(), "c1", "v1", 1)
	require.Error(t, err)
	assert.Len(t, *calls, 1, "deltas are never replayed")
}

func TestBackendValidationError(t *testing.T) {
	repo, _ := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusBadRequest, `{"error":{"code":"OUT_OF_STOCK","message":"not enough stock"}}`)
	})

	_, err := repo.AddItem(context.Background(), "c1", "v1", 50)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Equal(t, "cart-api: not enough stock", apperrors.Message(err))
}

func TestThroughCircuitBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusServiceUnavailable, "maintenance")
	}))
	defer srv.Close()

	base := httpclient.New(httpclient.Config{Timeout: time.Second, RetryWaitMin: time.Millisecond, RetryWaitMax: time.Millisecond})
	cfg := httpclient.DefaultBreakerConfig("cart-api-test")
	cfg.MinRequests = 1
	cfg.Cooldown = time.Minute
	cfg.Fallback = CircuitOpenFallback
	cb := httpclient.NewBreakerClient(base, cfg, logger.Discard())
	repo := NewCartRepository(cb, srv.URL, logger.Discard())

	_, err := repo.RemoveItem(context.Background(), "c1", "v1", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrServiceUnavail))
	assert.Contains(t, apperrors.Message(err), "maintenance")

	_, err = repo.RemoveItem(context.Background(), "c1", "v1", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrServiceUnavail))
	assert.Contains(t, apperrors.Message(err), "temporarily unavailable")
}

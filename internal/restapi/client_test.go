package restapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront-sync/internal/events"
	"storefront-sync/internal/restapi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSnapshot_RoutesByViewer(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := restapi.New(srv.URL+"/api/", "tok", time.Second, zap.NewNop())
	for _, v := range []events.Viewer{
		{Kind: events.ViewerUser, ID: "U1"},
		{Kind: events.ViewerVendor, ID: "V1"},
		{Kind: events.ViewerAdmin},
	} {
		raw, err := c.Snapshot(context.Background(), v)
		require.NoError(t, err)
		assert.Equal(t, "[]", string(raw))
	}
	assert.Equal(t, []string{"/api/orders/my", "/api/orders/vendor", "/api/orders"}, paths)

	_, err := c.Snapshot(context.Background(), events.Viewer{Kind: "guest"})
	require.ErrorIs(t, err, restapi.ErrUnknownViewer)
}

func TestUpdateStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/orders/7/status", r.URL.Path)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["status"] == "bogus" {
			http.Error(w, `{"error":"invalid status"}`, http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := restapi.New(srv.URL, "", time.Second, zap.NewNop())
	require.NoError(t, c.UpdateStatus(context.Background(), "7", "accepted"))

	err := c.UpdateStatus(context.Background(), "7", "bogus")
	var se *restapi.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnprocessableEntity, se.Code)
	assert.Contains(t, se.Body, "invalid status")
}

func TestSnapshot_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := restapi.New(url, "", time.Second, zap.NewNop()).Snapshot(context.Background(), events.Viewer{Kind: events.ViewerUser, ID: "U1"})
	require.Error(t, err)
}

func TestSnapshot_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"1"},{"id":"2"}]`))
	}))
	defer srv.Close()

	c := restapi.New(srv.URL, "", time.Second, zap.NewNop()).WithMaxBody(8)
	_, err := c.Snapshot(context.Background(), events.Viewer{Kind: events.ViewerUser, ID: "U1"})
	require.ErrorIs(t, err, restapi.ErrTooLarge)

	raw, err := c.WithMaxBody(int64(len(`[{"id":"1"},{"id":"2"}]`))).Snapshot(context.Background(), events.Viewer{Kind: events.ViewerUser, ID: "U1"})
	require.NoError(t, err)
	assert.Len(t, raw, 23)
}

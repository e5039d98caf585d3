package apiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientInvoke(t *testing.T) {
	var gotPath, gotQuery, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("uf")
		gotKey = r.Header.Get("chave-api-dados")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"number":"41"}]}`))
	}))
	defer srv.Close()

	fixed := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	c := NewHTTPClient("portal", srv.URL,
		WithHeaders(map[string]string{"chave-api-dados": "sekret-key"}),
		WithClock(func() time.Time { return fixed }),
	)

	res, err := c.Invoke(context.Background(), "contratos", map[string]any{"uf": "SP", "page": 2})
	require.NoError(t, err)

	assert.Equal(t, "/contratos", gotPath)
	assert.Equal(t, "SP", gotQuery)
	assert.Equal(t, "sekret-key", gotKey)
	assert.Equal(t, "portal", res.SourceEndpointID)
	assert.Equal(t, fixed, res.FetchedAt)
	assert.JSONEq(t, `{"items":[{"number":"41"}]}`, string(res.Payload))
}

func TestHTTPClientStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusUnauthorized, KindAuthenticationFailed},
		{http.StatusForbidden, KindAuthenticationFailed},
		{http.StatusNotFound, KindNotFound},
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusBadRequest, KindInvalidRequest},
		{http.StatusUnprocessableEntity, KindInvalidRequest},
		{http.StatusInternalServerError, KindTransientFailure},
		{http.StatusBadGateway, KindTransientFailure},
	}
	for _, tc := range tests {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			_, err := newTestClient(srv).Invoke(context.Background(), "contratos", nil)
			require.Error(t, err)
			assert.Equal(t, tc.want, KindOf(err))
		})
	}
}

func newTestClient(srv *httptest.Server) *HTTPClient {
	return NewHTTPClient("portal", srv.URL)
}

func TestHTTPClientRetryAfterHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "17")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Invoke(context.Background(), "contratos", nil)
	require.Error(t, err)
	assert.Equal(t, KindRateLimited, KindOf(err))
	assert.Equal(t, 17*time.Second, RetryAfterOf(err))
}

func TestHTTPClientErrorsNeverEchoHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewHTTPClient("portal", srv.URL,
		WithHeaders(map[string]string{"chave-api-dados": "sekret-key"}))

	_, err := client.Invoke(context.Background(), "contratos", nil)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "sekret-key")
}

func TestHTTPClientCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := newTestClient(srv).Invoke(ctx, "contratos", nil)
		errCh <- err
	}()
	cancel()

	err := <-errCh
	require.Error(t, err)
	assert.Equal(t, KindCancelled, KindOf(err))
}

func TestHTTPClientDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestClient(srv).Invoke(ctx, "contratos", nil)
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestHTTPClientConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // deliberately unreachable

	_, err := newTestClient(srv).Invoke(context.Background(), "contratos", nil)
	require.Error(t, err)
	assert.Equal(t, KindTransientFailure, KindOf(err))
}

package sources

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/retry"
)

func TestGetJSON_StatusRetries(t *testing.T) {
	tests := []struct {
		status    int
		wantHits  int32
		transient bool
	}{
		{http.StatusBadRequest, 1, false},
		{http.StatusUnauthorized, 1, false},
		{http.StatusNotFound, 1, false},
		{http.StatusTooManyRequests, 3, true},
		{http.StatusServiceUnavailable, 3, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				hits.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			policy := retry.NewPolicy(retry.ModeFixed, time.Millisecond, time.Millisecond, 2)
			var out map[string]any
			err := NewClient(srv.Client(), policy).GetJSON(t.Context(), srv.URL, nil, &out)
			require.Error(t, err)
			assert.Equal(t, tt.wantHits, hits.Load())

			classified, ok := ferrors.AsClassified(err)
			require.True(t, ok)
			assert.Equal(t, ferrors.CategoryNetwork, classified.Category())
			assert.Equal(t, tt.transient, classified.IsTransient())
		})
	}
}

func TestGetJSON_DecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "v", r.Header.Get("X-Key"))
		_, _ = w.Write([]byte(`{"name":"x"}`))
	}))
	defer srv.Close()

	var out map[string]any
	err := NewClient(srv.Client(), retry.DefaultPolicy()).GetJSON(t.Context(), srv.URL, map[string]string{"X-Key": "v"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "x", out["name"])
}

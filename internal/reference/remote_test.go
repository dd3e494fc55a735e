package reference

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	remoteRiskDoc = `version: remote-v2
ingredients:
  - name: salt
    risk: 0
`
	remoteAllergenDoc = `version: remote-v2
allergens:
  - allergen: nuts
    aliases: [nut, almond]
`
)

func newTestRefresher(t *testing.T, baseURL string, provider *Provider) *Refresher {
	t.Helper()
	r, err := NewRefresher(baseURL, provider, time.Minute, zap.NewNop())
	require.NoError(t, err)
	r.backoff = time.Millisecond
	return r
}

func TestRefreshSwapsNewVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case riskDocumentPath:
			w.Write([]byte(remoteRiskDoc))
		case allergenDocumentPath:
			w.Write([]byte(remoteAllergenDoc))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	initial, err := Builtin()
	require.NoError(t, err)
	provider := NewProvider(initial)

	refresher := newTestRefresher(t, srv.URL, provider)
	require.NoError(t, refresher.Refresh(context.Background()))

	assert.Equal(t, "remote-v2", provider.Current().Version())
	risk, ok := provider.Current().RiskFor("salt")
	assert.True(t, ok)
	assert.Equal(t, 0, risk)
}

func TestRefreshKeepsCurrentTablesOnUpstreamFailure(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	initial, err := Builtin()
	require.NoError(t, err)
	provider := NewProvider(initial)

	refresher := newTestRefresher(t, srv.URL, provider)
	err = refresher.Refresh(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, initial.Version(), provider.Current().Version(), "failed refresh must not disturb the active tables")
	assert.GreaterOrEqual(t, requests.Load(), int32(2), "expected bounded retries before giving up")
}

func TestRefreshIgnoresUnchangedVersion(t *testing.T) {
	initial, err := Parse([]byte(remoteRiskDoc), []byte(remoteAllergenDoc))
	require.NoError(t, err)
	provider := NewProvider(initial)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case riskDocumentPath:
			w.Write([]byte(remoteRiskDoc))
		case allergenDocumentPath:
			w.Write([]byte(remoteAllergenDoc))
		}
	}))
	defer srv.Close()

	refresher := newTestRefresher(t, srv.URL, provider)
	require.NoError(t, refresher.Refresh(context.Background()))
	assert.Same(t, initial, provider.Current())
}

func TestRefreshRejectsMalformedRemoteData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not: [valid"))
	}))
	defer srv.Close()

	initial, err := Builtin()
	require.NoError(t, err)
	provider := NewProvider(initial)

	refresher := newTestRefresher(t, srv.URL, provider)
	require.Error(t, refresher.Refresh(context.Background()))
	assert.Equal(t, initial.Version(), provider.Current().Version())
}

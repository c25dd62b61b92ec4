package mt5

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetchAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var creds Credentials
		if r.URL.Path != "/fetch-account" || r.Method != http.MethodPost ||
			json.NewDecoder(r.Body).Decode(&creds) != nil || creds.AccountID != "1001" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"balance":10000,"equity":10500,"profit":500,"margin":100,"free_margin":10400,"margin_level":10500,"positions":[{"symbol":"EURUSD","volume":1,"entry_price":1.1,"profit":500}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 0, 1)
	snap, err := c.FetchAccount(context.Background(), Credentials{AccountID: "1001", Password: "pw", Server: "demo"})
	require.NoError(t, err)
	require.Equal(t, "1001", snap.AccountID)
	require.Len(t, snap.Positions, 1)
	require.InDelta(t, 5.0, snap.ComputedProfitPercent(), 1e-9)
}

func TestFetchAccountServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"invalid login"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 0, 1)
	_, err := c.FetchAccount(context.Background(), Credentials{AccountID: "1"})

	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	require.Equal(t, "MT5 Service Error: invalid login", svcErr.Error())
}

func TestFetchAccountUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, time.Second, 0, 1)
	_, err := c.FetchAccount(context.Background(), Credentials{AccountID: "1"})
	require.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestComputedProfitPercent(t *testing.T) {
	explicit := 12.5
	tests := []struct {
		name string
		snap AccountSnapshot
		want float64
	}{
		{"explicit value wins", AccountSnapshot{Balance: 100, Equity: 200, ProfitPercent: &explicit}, 12.5},
		{"derived from equity", AccountSnapshot{Balance: 1000, Equity: 900}, -10},
		{"zero balance", AccountSnapshot{Balance: 0, Equity: 50}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.want, tt.snap.ComputedProfitPercent(), 1e-9)
		})
	}
}

package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianlabs/loyalty-engine/internal/loyalty"
)

// fakePlatform serves a minimal slice of the platform API for client tests.
type fakePlatform struct {
	mux        *http.ServeMux
	tokenCalls atomic.Int64
	apiCalls   atomic.Int64
	tokenTTL   int64
}

func newFakePlatform() *fakePlatform {
	f := &fakePlatform{mux: http.NewServeMux(), tokenTTL: 3600}
	f.mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-1",
			"expires_in":   f.tokenTTL,
		})
	})
	return f
}

func (f *fakePlatform) handle(path string, status int, body any) {
	f.mux.HandleFunc("/proj"+path, func(w http.ResponseWriter, r *http.Request) {
		f.apiCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(status)
		if body != nil {
			_ = json.NewEncoder(w).Encode(body)
		}
	})
}

func (f *fakePlatform) client(t *testing.T) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		APIURL:       srv.URL,
		AuthURL:      srv.URL,
		ProjectKey:   "proj",
		ClientID:     "id",
		ClientSecret: "secret",
		Timeout:      2 * time.Second,
	})
	require.NoError(t, err)
	return c, srv
}

func TestClient_OrderByID(t *testing.T) {
	f := newFakePlatform()
	f.handle("/orders/o1", http.StatusOK, map[string]any{
		"id":         "o1",
		"customerId": "c1",
		"cart":       map[string]any{"typeId": "cart", "id": "cart-1"},
		"paymentInfo": map[string]any{
			"payments": []map[string]any{{"typeId": "payment", "id": "p1"}},
		},
		"directDiscounts": []map[string]any{{
			"id": "dd1",
			"value": map[string]any{
				"type":  "absolute",
				"money": []map[string]any{{"centAmount": 300, "currencyCode": "USD"}},
			},
		}},
		"discountOnTotalPrice": map[string]any{
			"includedDiscounts": []map[string]any{{
				"discount":         map[string]any{"typeId": "cart-discount", "id": "cd1"},
				"discountedAmount": map[string]any{"centAmount": 200, "currencyCode": "USD"},
			}},
		},
	})
	c, _ := f.client(t)

	snap, err := c.OrderByID(context.Background(), "o1")
	require.NoError(t, err)

	assert.Equal(t, "c1", snap.CustomerID)
	assert.Equal(t, "cart-1", snap.CartID)
	require.Len(t, snap.Payments, 1)
	assert.Equal(t, "p1", snap.Payments[0].ID)
	require.Len(t, snap.DirectDiscounts, 1)
	assert.Equal(t, loyalty.Money{CentAmount: 300, CurrencyCode: "USD"}, snap.DirectDiscounts[0].Value.Money[0])
	require.Len(t, snap.IncludedDiscounts, 1)
	assert.Equal(t, loyalty.RefTypeCartDiscount, snap.IncludedDiscounts[0].Ref.TypeID)
	assert.Equal(t, int64(200), snap.IncludedDiscounts[0].Amount.CentAmount)
}

func TestClient_StatusMapping(t *testing.T) {
	f := newFakePlatform()
	f.handle("/payments/missing", http.StatusNotFound, nil)
	f.handle("/customers/stale", http.StatusConflict, nil)
	c, _ := f.client(t)

	_, err := c.PaymentAmount(context.Background(), "missing")
	assert.ErrorIs(t, err, loyalty.ErrNotFound)

	err = c.UpdateCustomer(context.Background(), "stale", 4, []loyalty.CustomerUpdateAction{
		loyalty.SetCustomFieldAction{Name: "availablePoints", Value: 10},
	})
	assert.ErrorIs(t, err, loyalty.ErrVersionConflict)
}

func TestClient_TokenCachedAcrossCalls(t *testing.T) {
	f := newFakePlatform()
	f.handle("/payments/p1", http.StatusOK, map[string]any{
		"amountPlanned": map[string]any{"centAmount": 500, "currencyCode": "USD"},
	})
	c, _ := f.client(t)

	for range 3 {
		amount, err := c.PaymentAmount(context.Background(), "p1")
		require.NoError(t, err)
		assert.Equal(t, int64(500), amount.CentAmount)
	}
	assert.Equal(t, int64(1), f.tokenCalls.Load())
}

func TestTokenSource_RefreshesOnExpiry(t *testing.T) {
	f := newFakePlatform()
	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)

	ts := newTokenSource(srv.URL, "id", "secret", nil, srv.Client())

	base := time.Now()
	ts.now = func() time.Time { return base }

	_, err := ts.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), f.tokenCalls.Load())

	// Still within the token lifetime: cached.
	ts.now = func() time.Time { return base.Add(time.Minute) }
	_, err = ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.tokenCalls.Load())

	// Past expiry (minus slack): refreshed.
	ts.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, err = ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.tokenCalls.Load())
}

func TestClient_RetriesOnceAfterUnauthorized(t *testing.T) {
	var tokenCalls, apiCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, _ *http.Request) {
		// First token issued is already stale on the API side.
		token := "fresh"
		if tokenCalls.Add(1) == 1 {
			token = "stale"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": token,
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/proj/payments/p1", func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"amountPlanned": map[string]any{"centAmount": 500, "currencyCode": "USD"},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		APIURL:     srv.URL,
		AuthURL:    srv.URL,
		ProjectKey: "proj",
		ClientID:   "id", ClientSecret: "secret",
		Timeout: 2 * time.Second,
	})
	require.NoError(t, err)

	amount, err := c.PaymentAmount(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), amount.CentAmount)
	assert.Equal(t, int64(2), tokenCalls.Load(), "401 should invalidate and refetch the token")
	assert.Equal(t, int64(2), apiCalls.Load(), "the request should be retried exactly once")
}

func TestClient_CustomerByID(t *testing.T) {
	f := newFakePlatform()
	f.handle("/customers/c1", http.StatusOK, map[string]any{
		"id":      "c1",
		"version": 7,
		"custom": map[string]any{
			"type": map[string]any{
				"id":  "type-id",
				"obj": map[string]any{"key": "loyalty-customer"},
			},
			"fields": map[string]any{"availablePoints": 12},
		},
	})
	c, _ := f.client(t)

	cust, err := c.CustomerByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), cust.Version)
	assert.Equal(t, "loyalty-customer", cust.CustomTypeKey)
	assert.Equal(t, float64(12), cust.Fields["availablePoints"])
}

func TestRatesLoader_Load(t *testing.T) {
	keys := loyalty.DefaultKeys()

	t.Run("absent object loads as empty table", func(t *testing.T) {
		f := newFakePlatform()
		f.handle("/custom-objects/"+keys.RateContainer+"/"+keys.RateKey, http.StatusNotFound, nil)
		c, _ := f.client(t)

		table, err := NewRatesLoader(c, keys).Load(context.Background())
		require.NoError(t, err)
		assert.True(t, table.Empty())
	})

	t.Run("stored rates load", func(t *testing.T) {
		f := newFakePlatform()
		f.handle("/custom-objects/"+keys.RateContainer+"/"+keys.RateKey, http.StatusOK, map[string]any{
			"container": keys.RateContainer,
			"key":       keys.RateKey,
			"value": []map[string]any{
				{"currency": "USD", "currencyCentAmount": 100, "pointAmount": 1},
			},
		})
		c, _ := f.client(t)

		table, err := NewRatesLoader(c, keys).Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(5), table.Points(500, "USD"))
	})
}

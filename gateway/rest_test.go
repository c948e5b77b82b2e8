package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/order"
)

func newTestGateway(handler http.HandlerFunc) (*RESTGateway, *httptest.Server) {
	srv := httptest.NewServer(handler)
	g := NewRESTGateway(srv.URL, "test-key", "test-secret")
	g.HTTPClient = srv.Client()
	return g, srv
}

func TestPlaceOrder(t *testing.T) {
	var gotMethod, gotPath, gotKey string
	var gotQuery map[string][]string
	g, srv := newTestGateway(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-KEY")
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode(map[string]string{"orderId": "ex-123"})
	})
	defer srv.Close()

	id, err := g.PlaceOrder(context.Background(), "BTC/USDT", order.SideBuy, order.TypeLimit, 10, 100)
	require.NoError(t, err)
	assert.Equal(t, "ex-123", id)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/v1/orders", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, []string{"buy"}, gotQuery["side"])
	assert.Equal(t, []string{"10"}, gotQuery["amount"])
	assert.Equal(t, []string{"100"}, gotQuery["price"])
	assert.NotEmpty(t, gotQuery["timestamp"])
	assert.NotEmpty(t, gotQuery["signature"])
}

func TestPlaceOrderErrors(t *testing.T) {
	g, srv := newTestGateway(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	defer srv.Close()

	_, err := g.PlaceOrder(context.Background(), "BTC/USDT", order.SideBuy, order.TypeMarket, 10, 0)
	assert.Error(t, err)

	// Empty order id in an otherwise successful response is an error too.
	g2, srv2 := newTestGateway(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	})
	defer srv2.Close()
	_, err = g2.PlaceOrder(context.Background(), "BTC/USDT", order.SideBuy, order.TypeMarket, 10, 0)
	assert.Error(t, err)
}

func TestGetOrderStatus(t *testing.T) {
	g, srv := newTestGateway(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/orders/ex-123", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":       "partially_filled",
			"filledAmount": 4.0,
			"filledPrice":  99.5,
		})
	})
	defer srv.Close()

	st, err := g.GetOrderStatus(context.Background(), "ex-123")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPartial, st.Status)
	assert.Equal(t, 4.0, st.FilledAmount)
	assert.Equal(t, 99.5, st.FilledPrice)
}

func TestGetOrderStatusUnknownState(t *testing.T) {
	g, srv := newTestGateway(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "vaporized"})
	})
	defer srv.Close()

	_, err := g.GetOrderStatus(context.Background(), "ex-123")
	assert.Error(t, err)
}

func TestCancelOrder(t *testing.T) {
	g, srv := newTestGateway(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		json.NewEncoder(w).Encode(map[string]bool{"cancelled": true})
	})
	defer srv.Close()

	ok, err := g.CancelOrder(context.Background(), "ex-123")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestParseStatus(t *testing.T) {
	testCases := []struct {
		in      string
		want    order.Status
		wantErr bool
	}{
		{"new", order.StatusPending, false},
		{"open", order.StatusSubmitted, false},
		{"FILLED", order.StatusFilled, false},
		{"canceled", order.StatusCancelled, false},
		{"cancelled", order.StatusCancelled, false},
		{"expired", order.StatusRejected, false},
		{"bogus", order.StatusPending, true},
	}
	for _, tc := range testCases {
		got, err := parseStatus(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

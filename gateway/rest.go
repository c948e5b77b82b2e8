package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"autotrader/order"
)

// RESTGateway implements order.Gateway over a signed HTTP API. It never
// initiates network calls on its own; HTTPClient is injectable for httptest.
type RESTGateway struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	HTTPClient *http.Client
}

// NewRESTGateway builds a gateway with a default timeout-bounded client.
func NewRESTGateway(baseURL, apiKey, apiSecret string) *RESTGateway {
	return &RESTGateway{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		APISecret:  apiSecret,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type placeResponse struct {
	OrderID string `json:"orderId"`
}

type statusResponse struct {
	Status       string  `json:"status"`
	FilledAmount float64 `json:"filledAmount"`
	FilledPrice  float64 `json:"filledPrice"`
}

type cancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// PlaceOrder submits an order and returns the venue's order id.
func (g *RESTGateway) PlaceOrder(ctx context.Context, symbol string, side order.Side, typ order.Type, amount, price float64) (string, error) {
	if g == nil || g.HTTPClient == nil {
		return "", fmt.Errorf("http client not set")
	}
	params := map[string]string{
		"symbol": symbol,
		"side":   string(side),
		"type":   string(typ),
		"amount": strconv.FormatFloat(amount, 'f', -1, 64),
	}
	if price > 0 {
		params["price"] = strconv.FormatFloat(price, 'f', -1, 64)
	}
	var pr placeResponse
	if err := g.call(ctx, http.MethodPost, "/api/v1/orders", params, &pr); err != nil {
		return "", err
	}
	if pr.OrderID == "" {
		return "", fmt.Errorf("empty orderId in place response")
	}
	return pr.OrderID, nil
}

// GetOrderStatus reads the remote view of one order.
func (g *RESTGateway) GetOrderStatus(ctx context.Context, exchangeID string) (order.GatewayOrderStatus, error) {
	if g == nil || g.HTTPClient == nil {
		return order.GatewayOrderStatus{}, fmt.Errorf("http client not set")
	}
	var sr statusResponse
	path := "/api/v1/orders/" + url.PathEscape(exchangeID)
	if err := g.call(ctx, http.MethodGet, path, nil, &sr); err != nil {
		return order.GatewayOrderStatus{}, err
	}
	status, err := parseStatus(sr.Status)
	if err != nil {
		return order.GatewayOrderStatus{}, err
	}
	return order.GatewayOrderStatus{
		Status:       status,
		FilledAmount: sr.FilledAmount,
		FilledPrice:  sr.FilledPrice,
	}, nil
}

// CancelOrder withdraws an order at the venue.
func (g *RESTGateway) CancelOrder(ctx context.Context, exchangeID string) (bool, error) {
	if g == nil || g.HTTPClient == nil {
		return false, fmt.Errorf("http client not set")
	}
	var cr cancelResponse
	path := "/api/v1/orders/" + url.PathEscape(exchangeID)
	if err := g.call(ctx, http.MethodDelete, path, nil, &cr); err != nil {
		return false, err
	}
	return cr.Cancelled, nil
}

func (g *RESTGateway) call(ctx context.Context, method, path string, params map[string]string, out interface{}) error {
	query := signedQuery(params, g.APISecret)
	endpoint := strings.TrimRight(g.BaseURL, "/") + path
	if query != "" {
		endpoint += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-KEY", g.APIKey)

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// signedQuery encodes params in sorted order with a timestamp and an
// HMAC-SHA256 signature over the encoded string.
func signedQuery(params map[string]string, secret string) string {
	values := url.Values{}
	keys := make([]string, 0, len(params)+1)
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		values.Set(k, params[k])
	}
	values.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))

	encoded := values.Encode()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(encoded))
	return encoded + "&signature=" + hex.EncodeToString(mac.Sum(nil))
}

func parseStatus(s string) (order.Status, error) {
	switch strings.ToLower(s) {
	case "pending", "new":
		return order.StatusPending, nil
	case "submitted", "open":
		return order.StatusSubmitted, nil
	case "partial", "partially_filled":
		return order.StatusPartial, nil
	case "filled":
		return order.StatusFilled, nil
	case "cancelled", "canceled":
		return order.StatusCancelled, nil
	case "rejected", "expired":
		return order.StatusRejected, nil
	default:
		return order.StatusPending, fmt.Errorf("unknown remote order status %q", s)
	}
}

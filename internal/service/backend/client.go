package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/shopally-web/backend/internal/identity"
	"github.com/zhouzirui/shopally-web/backend/internal/model/product"
)

const maxResponseBytes = 8 << 20

// Client talks to the ShopAlly backend API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a client for baseURL. The timeout is the only deadline
// applied to backend calls.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// SearchRequest carries a free-text query and its optional filters.
type SearchRequest struct {
	Query       string
	PriceMaxETB *float64
	MinRating   *float64
}

// AlertReceipt is returned when the backend registers a price alert.
type AlertReceipt struct {
	AlertID string `json:"alertId"`
	Status  string `json:"status"`
}

// AlertRequest registers a price-drop alert for a product.
type AlertRequest struct {
	ProductID    string  `json:"productId"`
	ProductTitle string  `json:"productTitle,omitempty"`
	CurrentPrice float64 `json:"currentPrice,omitempty"`
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error json.RawMessage `json:"error"`
}

// Search runs a product search. A response without data.products is an
// empty result, not an error.
func (c *Client) Search(ctx context.Context, id identity.Identity, req SearchRequest) ([]product.Product, error) {
	query := url.Values{"q": {req.Query}}
	if req.PriceMaxETB != nil {
		query.Set("priceMaxETB", strconv.FormatFloat(*req.PriceMaxETB, 'f', -1, 64))
	}
	if req.MinRating != nil {
		query.Set("minRating", strconv.FormatFloat(*req.MinRating, 'f', -1, 64))
	}

	var data struct {
		Products []product.Product `json:"products"`
	}
	if err := c.do(ctx, id, http.MethodGet, "/api/v1/search?"+query.Encode(), nil, &data); err != nil {
		return nil, err
	}
	if data.Products == nil {
		return []product.Product{}, nil
	}
	return data.Products, nil
}

// Compare asks the backend to compare 2 to 4 products, in the given order.
func (c *Client) Compare(ctx context.Context, id identity.Identity, products []product.Summary) (product.ComparisonResult, error) {
	body := struct {
		Products []product.Summary `json:"products"`
	}{Products: products}

	var result product.ComparisonResult
	if err := c.do(ctx, id, http.MethodPost, "/api/v1/compare", body, &result); err != nil {
		return product.ComparisonResult{}, err
	}
	return result, nil
}

// CreateAlert registers a price-drop alert.
func (c *Client) CreateAlert(ctx context.Context, id identity.Identity, req AlertRequest) (AlertReceipt, error) {
	var receipt AlertReceipt
	if err := c.do(ctx, id, http.MethodPost, "/api/v1/alerts", req, &receipt); err != nil {
		return AlertReceipt{}, err
	}
	return receipt, nil
}

// DeleteAlert removes an alert and returns the backend's status text.
func (c *Client) DeleteAlert(ctx context.Context, id identity.Identity, alertID string) (string, error) {
	var data struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, id, http.MethodDelete, "/api/v1/alerts/"+url.PathEscape(alertID), nil, &data); err != nil {
		return "", err
	}
	return data.Status, nil
}

func (c *Client) do(ctx context.Context, id identity.Identity, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	id.Apply(req)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &APIError{Kind: KindTransport, Status: resp.StatusCode, Err: err}
	}

	c.logger.Debug("backend call",
		zap.String("method", method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)),
	)

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if !ok {
			return &APIError{Kind: KindStatus, Status: resp.StatusCode, Err: err}
		}
		return &APIError{Kind: KindDecode, Status: resp.StatusCode, Err: err}
	}

	if !ok {
		code, message := parseErrorField(env.Error)
		return &APIError{Kind: KindStatus, Status: resp.StatusCode, Code: code, Message: message}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &APIError{Kind: KindDecode, Status: resp.StatusCode, Err: errors.Join(errors.New("decode data"), err)}
	}
	return nil
}

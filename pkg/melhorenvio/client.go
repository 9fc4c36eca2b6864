package melhorenvio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/mariposavintage/mariposa-backend/pkg/errors"
)

const (
	sandboxBaseURL    = "https://sandbox.melhorenvio.com.br/api/v2"
	productionBaseURL = "https://melhorenvio.com.br/api/v2"

	requestBodyReadLimit int64 = 1024
)

// Correios and Jadlog services quoted for every shipment.
var DefaultServiceIDs = []int{1, 2, 3, 4}

var (
	errTokenRequired     = errors.New("melhor envio token is required")
	errUserAgentRequired = errors.New("melhor envio user agent is required")
)

// Environment selects the sandbox or production API host.
type Environment string

const (
	EnvSandbox    Environment = "sandbox"
	EnvProduction Environment = "production"
)

// Client wraps the Melhor Envio shipment APIs.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userAgent  string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the environment-derived base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds a Melhor Envio client for the given environment.
func NewClient(token, userAgent string, env Environment, opts ...Option) (*Client, error) {
	trimmedToken := strings.TrimSpace(token)
	if trimmedToken == "" {
		return nil, errTokenRequired
	}
	trimmedAgent := strings.TrimSpace(userAgent)
	if trimmedAgent == "" {
		return nil, errUserAgentRequired
	}

	baseURL := sandboxBaseURL
	if env == EnvProduction {
		baseURL = productionBaseURL
	}

	client := &Client{
		token:      trimmedToken,
		userAgent:  trimmedAgent,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if client.baseURL == "" {
		client.baseURL = sandboxBaseURL
	}

	return client, nil
}

// CalculateRequest is the payload sent to /me/shipment/calculate.
type CalculateRequest struct {
	From     Endpoint  `json:"from"`
	To       Endpoint  `json:"to"`
	Products []Product `json:"products"`
	Services string    `json:"services,omitempty"`
}

// Endpoint identifies one end of the shipment by postal code.
type Endpoint struct {
	PostalCode string `json:"postal_code"`
}

// Product describes one parcel item for quoting.
type Product struct {
	ID           string  `json:"id,omitempty"`
	WidthCM      int     `json:"width"`
	HeightCM     int     `json:"height"`
	LengthCM     int     `json:"length"`
	WeightKg     float64 `json:"weight"`
	InsuranceBRL float64 `json:"insurance_value"`
	Quantity     int     `json:"quantity"`
}

// Quote is one carrier option returned by the calculate endpoint. Price fields
// come back as strings and custom_price may be absent depending on the carrier.
type Quote struct {
	ServiceID    int          `json:"id"`
	Name         string       `json:"name"`
	Price        string       `json:"price"`
	CustomPrice  string       `json:"custom_price"`
	DeliveryTime int          `json:"delivery_time"`
	Company      QuoteCompany `json:"company"`
	Error        string       `json:"error,omitempty"`
}

// QuoteCompany names the carrier behind a quote.
type QuoteCompany struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// CartItemRequest is the payload for adding a shipment to the cart.
type CartItemRequest struct {
	Service int            `json:"service"`
	From    CartParty      `json:"from"`
	To      CartParty      `json:"to"`
	Volumes []CartVolume   `json:"volumes"`
	Options map[string]any `json:"options,omitempty"`
}

// CartParty describes the sender or recipient on a label.
type CartParty struct {
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	Document   string `json:"document,omitempty"`
	Address    string `json:"address"`
	Number     string `json:"number,omitempty"`
	District   string `json:"district,omitempty"`
	City       string `json:"city"`
	State      string `json:"state_abbr"`
	PostalCode string `json:"postal_code"`
}

// CartVolume is one parcel on a label.
type CartVolume struct {
	WidthCM  int     `json:"width"`
	HeightCM int     `json:"height"`
	LengthCM int     `json:"length"`
	WeightKg float64 `json:"weight"`
}

// CartItem is the created cart entry.
type CartItem struct {
	ID       string `json:"id"`
	Protocol string `json:"protocol"`
	Status   string `json:"status"`
}

// CheckoutResponse is returned after purchasing cart entries.
type CheckoutResponse struct {
	Purchase struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Orders []struct {
			ID string `json:"id"`
		} `json:"orders"`
	} `json:"purchase"`
}

// Calculate quotes the shipment against the default service allowlist.
func (c *Client) Calculate(ctx context.Context, req CalculateRequest) ([]Quote, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "melhor envio client not configured")
	}
	if strings.TrimSpace(req.From.PostalCode) == "" || strings.TrimSpace(req.To.PostalCode) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "origin and destination postal codes are required")
	}
	if len(req.Products) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one product is required")
	}

	if req.Services == "" {
		parts := make([]string, 0, len(DefaultServiceIDs))
		for _, id := range DefaultServiceIDs {
			parts = append(parts, fmt.Sprintf("%d", id))
		}
		req.Services = strings.Join(parts, ",")
	}

	var quotes []Quote
	if err := c.doJSON(ctx, http.MethodPost, "me/shipment/calculate", req, &quotes); err != nil {
		return nil, err
	}
	return quotes, nil
}

// AddToCart inserts a shipment into the Melhor Envio cart.
func (c *Client) AddToCart(ctx context.Context, req CartItemRequest) (*CartItem, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "melhor envio client not configured")
	}
	if req.Service == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart item requires a service")
	}

	var item CartItem
	if err := c.doJSON(ctx, http.MethodPost, "me/cart", req, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Checkout purchases the provided cart entries, producing shipping labels.
func (c *Client) Checkout(ctx context.Context, cartItemIDs []string) (*CheckoutResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "melhor envio client not configured")
	}
	if len(cartItemIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one cart item is required")
	}

	payload := map[string]any{"orders": cartItemIDs}
	var resp CheckoutResponse
	if err := c.doJSON(ctx, http.MethodPost, "me/shipment/checkout", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal melhor envio request")
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build melhor envio request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute melhor envio request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, requestBodyReadLimit))
		detail := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, detail, "melhor envio request failed")
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode melhor envio response")
	}
	return nil
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}

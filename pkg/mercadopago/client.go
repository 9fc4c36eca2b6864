package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/mariposavintage/mariposa-backend/pkg/errors"
)

const (
	defaultBaseURL             = "https://api.mercadopago.com"
	requestBodyReadLimit int64 = 1024
)

var (
	errAccessTokenRequired = errors.New("mercado pago access token is required")
)

// Client wraps the Mercado Pago REST APIs used by checkout and webhook handling.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
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

// WithBaseURL overrides the configured API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the Mercado Pago client given an access token.
func NewClient(accessToken string, opts ...Option) (*Client, error) {
	trimmedToken := strings.TrimSpace(accessToken)
	if trimmedToken == "" {
		return nil, errAccessTokenRequired
	}

	client := &Client{
		accessToken: trimmedToken,
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
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
		client.baseURL = defaultBaseURL
	}

	return client, nil
}

// Payment is the subset of the /v1/payments payload the platform consumes.
type Payment struct {
	ID                int64        `json:"id"`
	Status            string       `json:"status"`
	StatusDetail      string       `json:"status_detail"`
	ExternalReference string       `json:"external_reference"`
	TransactionAmount float64      `json:"transaction_amount"`
	Order             PaymentOrder `json:"order"`
	Payer             Payer        `json:"payer"`
	DateApproved      *time.Time   `json:"date_approved"`
}

// PaymentOrder links a payment back to its merchant order.
type PaymentOrder struct {
	ID int64 `json:"id"`
}

// Payer carries the buyer identity attached to a payment.
type Payer struct {
	Email string `json:"email"`
}

// MerchantOrder is the subset of the /merchant_orders payload the platform consumes.
type MerchantOrder struct {
	ID                int64                  `json:"id"`
	PreferenceID      string                 `json:"preference_id"`
	ExternalReference string                 `json:"external_reference"`
	OrderStatus       string                 `json:"order_status"`
	Payments          []MerchantOrderPayment `json:"payments"`
}

// MerchantOrderPayment is a payment summary embedded in a merchant order.
type MerchantOrderPayment struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// PreferenceItem is a line item on a checkout preference.
type PreferenceItem struct {
	ID          string  `json:"id,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	PictureURL  string  `json:"picture_url,omitempty"`
	Quantity    int     `json:"quantity"`
	CurrencyID  string  `json:"currency_id"`
	UnitPrice   float64 `json:"unit_price"`
}

// PreferencePayer identifies the buyer on a checkout preference.
type PreferencePayer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// PreferenceBackURLs holds the browser redirect targets after payment.
type PreferenceBackURLs struct {
	Success string `json:"success,omitempty"`
	Pending string `json:"pending,omitempty"`
	Failure string `json:"failure,omitempty"`
}

// PreferenceRequest is the payload sent to /checkout/preferences.
type PreferenceRequest struct {
	Items               []PreferenceItem    `json:"items"`
	Payer               *PreferencePayer    `json:"payer,omitempty"`
	ExternalReference   string              `json:"external_reference"`
	NotificationURL     string              `json:"notification_url,omitempty"`
	BackURLs            *PreferenceBackURLs `json:"back_urls,omitempty"`
	AutoReturn          string              `json:"auto_return,omitempty"`
	StatementDescriptor string              `json:"statement_descriptor,omitempty"`
}

// Preference is the created checkout preference.
type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// GetPayment fetches a payment by ID.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mercado pago client not configured")
	}
	trimmed := strings.TrimSpace(paymentID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment ID is required")
	}

	var payment Payment
	path := fmt.Sprintf("v1/payments/%s", url.PathEscape(trimmed))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetMerchantOrder fetches a merchant order by ID.
func (c *Client) GetMerchantOrder(ctx context.Context, merchantOrderID string) (*MerchantOrder, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mercado pago client not configured")
	}
	trimmed := strings.TrimSpace(merchantOrderID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant order ID is required")
	}

	var order MerchantOrder
	path := fmt.Sprintf("merchant_orders/%s", url.PathEscape(trimmed))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// CreatePreference creates a checkout preference for hosted payment.
func (c *Client) CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mercado pago client not configured")
	}
	if len(req.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "preference requires at least one item")
	}
	if strings.TrimSpace(req.ExternalReference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external reference is required")
	}

	var pref Preference
	if err := c.doJSON(ctx, http.MethodPost, "checkout/preferences", req, &pref); err != nil {
		return nil, err
	}
	return &pref, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal mercado pago request")
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build mercado pago request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute mercado pago request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, requestBodyReadLimit))
		detail := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		return pkgerrors.Wrap(codeForStatus(resp.StatusCode), detail, "mercado pago request failed")
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode mercado pago response")
	}
	return nil
}

func codeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return pkgerrors.CodeValidation
	default:
		return pkgerrors.CodeDependency
	}
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}

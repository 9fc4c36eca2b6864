package mercadopago

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	pkgerrors "github.com/mariposavintage/mariposa-backend/pkg/errors"
)

func TestClientGetPaymentRequest(t *testing.T) {
	const expectedURL = "http://mp.test/v1/payments/12345"
	respBody := `{"id":12345,"status":"approved","status_detail":"accredited","external_reference":"order_42","transaction_amount":150.5,"order":{"id":987},"payer":{"email":"buyer@example.com"}}`

	var capturedURL string
	var capturedHeaders http.Header

	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		capturedHeaders = req.Header.Clone()
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(respBody)),
			Header:     http.Header{},
		}, nil
	})

	httpClient := &http.Client{Transport: rt}
	client, err := NewClient("test-token", WithBaseURL("http://mp.test"), WithHTTPClient(httpClient))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	payment, err := client.GetPayment(context.Background(), "12345")
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if capturedURL != expectedURL {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	if capturedHeaders.Get("Authorization") != "Bearer test-token" {
		t.Fatalf("authorization header missing")
	}
	if payment.Status != "approved" || payment.ExternalReference != "order_42" {
		t.Fatalf("unexpected payment %+v", payment)
	}
	if payment.Order.ID != 987 {
		t.Fatalf("unexpected merchant order link %+v", payment.Order)
	}
}

func TestClientGetMerchantOrderRequest(t *testing.T) {
	const expectedURL = "http://mp.test/merchant_orders/987"
	respBody := `{"id":987,"preference_id":"pref-1","external_reference":"order_42","order_status":"paid","payments":[{"id":12345,"status":"approved"}]}`

	var capturedURL string

	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(respBody)),
			Header:     http.Header{},
		}, nil
	})

	httpClient := &http.Client{Transport: rt}
	client, err := NewClient("test-token", WithBaseURL("http://mp.test"), WithHTTPClient(httpClient))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	order, err := client.GetMerchantOrder(context.Background(), "987")
	if err != nil {
		t.Fatalf("get merchant order: %v", err)
	}
	if capturedURL != expectedURL {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	if order.PreferenceID != "pref-1" || len(order.Payments) != 1 {
		t.Fatalf("unexpected order %+v", order)
	}
}

func TestClientCreatePreferenceRequest(t *testing.T) {
	respBody := `{"id":"pref-1","init_point":"https://mp.test/init","sandbox_init_point":"https://mp.test/sandbox"}`

	var capturedBody map[string]any

	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		bodyBytes, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read request body: %v", err)
		}
		if err := json.Unmarshal(bodyBytes, &capturedBody); err != nil {
			t.Fatalf("unmarshal request body: %v", err)
		}
		return &http.Response{
			StatusCode: http.StatusCreated,
			Body:       io.NopCloser(strings.NewReader(respBody)),
			Header:     http.Header{},
		}, nil
	})

	httpClient := &http.Client{Transport: rt}
	client, err := NewClient("test-token", WithBaseURL("http://mp.test"), WithHTTPClient(httpClient))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	pref, err := client.CreatePreference(context.Background(), PreferenceRequest{
		Items: []PreferenceItem{{
			Title:      "Bolsa vintage anos 70",
			Quantity:   1,
			CurrencyID: "BRL",
			UnitPrice:  150.5,
		}},
		ExternalReference: "order_42",
		NotificationURL:   "https://shop.test/api/v1/webhooks/mercadopago",
	})
	if err != nil {
		t.Fatalf("create preference: %v", err)
	}
	if pref.ID != "pref-1" {
		t.Fatalf("unexpected preference %+v", pref)
	}
	if capturedBody["external_reference"] != "order_42" {
		t.Fatalf("external reference not sent: %+v", capturedBody)
	}
}

func TestClientMapsGatewayErrors(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Body:       io.NopCloser(strings.NewReader(`{"message":"payment not found"}`)),
			Header:     http.Header{},
		}, nil
	})

	httpClient := &http.Client{Transport: rt}
	client, err := NewClient("test-token", WithBaseURL("http://mp.test"), WithHTTPClient(httpClient))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.GetPayment(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error for 404 response")
	}
	domainErr := pkgerrors.As(err)
	if domainErr == nil {
		t.Fatalf("expected domain error, got %v", err)
	}
	if domainErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %s", domainErr.Code())
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

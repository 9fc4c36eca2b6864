package mercadopagowebhook

import (
	"encoding/json"
	"net/url"
	"strings"
)

// Topics this handler reconciles. Anything else is acknowledged untouched.
const (
	TopicPayment       = "payment"
	TopicMerchantOrder = "merchant_order"
)

// Notification is the normalized form of a Mercado Pago webhook delivery.
// The provider has shipped several payload generations: IPN posts use
// topic/resource, newer webhooks use type/data.id, and some variants put the
// id at the top level. All of them collapse into topic + resource id here.
type Notification struct {
	Topic    string
	DataID   string
	ID       string
	Resource string
}

type notificationPayload struct {
	Type     string          `json:"type"`
	Topic    string          `json:"topic"`
	ID       json.RawMessage `json:"id"`
	Resource string          `json:"resource"`
	Data     struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// ParseNotification merges the JSON body with the query string. Query values
// win only when the body leaves the slot empty; Mercado Pago sends both on
// some delivery modes.
func ParseNotification(body []byte, query url.Values) Notification {
	var payload notificationPayload
	if len(body) > 0 {
		_ = json.Unmarshal(body, &payload)
	}

	notif := Notification{
		Topic:    firstNonEmpty(payload.Type, payload.Topic, query.Get("type"), query.Get("topic")),
		DataID:   rawToString(payload.Data.ID),
		ID:       firstNonEmpty(rawToString(payload.ID), query.Get("data.id"), query.Get("id")),
		Resource: payload.Resource,
	}
	return notif
}

// ResourceID resolves the id of the payment or merchant order the delivery
// refers to: data.id first, then the top-level id, then the last path segment
// of the resource URL.
func (n Notification) ResourceID() string {
	if n.DataID != "" {
		return n.DataID
	}
	if n.ID != "" {
		return n.ID
	}
	return lastPathSegment(n.Resource)
}

func lastPathSegment(resource string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(resource), "/")
	if trimmed == "" {
		return ""
	}
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

// rawToString accepts ids delivered as JSON numbers or strings.
func rawToString(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	trimmed = strings.Trim(trimmed, `"`)
	if trimmed == "null" {
		return ""
	}
	return trimmed
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/mariposavintage/mariposa-backend/pkg/errors"
)

type samplePayload struct {
	Email string `json:"email" validate:"required,email"`
	Qty   int    `json:"qty" validate:"omitempty,min=1"`
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"email":"ana@example.com","extra":true}`))

	var payload samplePayload
	err := DecodeJSONBody(r, &payload)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestDecodeJSONBodyReportsFieldsByJSONName(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"qty":0,"email":"not-an-email"}`))

	var payload samplePayload
	err := DecodeJSONBody(r, &payload)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)

	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	require.Equal(t, "must be a valid email", details["email"])
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"email":"ana@example.com","qty":2}`))

	var payload samplePayload
	require.NoError(t, DecodeJSONBody(r, &payload))
	require.Equal(t, "ana@example.com", payload.Email)
	require.Equal(t, 2, payload.Qty)
}

package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/mariposavintage/mariposa-backend/api/responses"
	mercadopagowebhook "github.com/mariposavintage/mariposa-backend/internal/webhooks/mercadopago"
	pkgerrors "github.com/mariposavintage/mariposa-backend/pkg/errors"
	"github.com/mariposavintage/mariposa-backend/pkg/logger"
	"github.com/mariposavintage/mariposa-backend/pkg/mercadopago"
)

type MercadoPagoWebhookService interface {
	HandleNotification(ctx context.Context, notif mercadopagowebhook.Notification, requestID string) error
}

// MercadoPagoWebhook receives payment and merchant order notifications. The
// gateway retries until it sees a 2xx, so reconcile failures surface as errors
// and everything ignorable is acknowledged.
func MercadoPagoWebhook(svc MercadoPagoWebhookService, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		notif := mercadopagowebhook.ParseNotification(payload, r.URL.Query())
		requestID := strings.TrimSpace(r.Header.Get("x-request-id"))

		if secret != "" {
			sigHeader := r.Header.Get("x-signature")
			if sigHeader == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeSignature, "signature header missing"))
				return
			}
			dataID := strings.TrimSpace(r.URL.Query().Get("data.id"))
			if dataID == "" {
				dataID = notif.ResourceID()
			}
			if err := mercadopago.VerifySignature(secret, dataID, requestID, sigHeader); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeSignature, err, "invalid webhook signature"))
				return
			}
		}

		if err := svc.HandleNotification(ctx, notif, requestID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, nil)
	}
}

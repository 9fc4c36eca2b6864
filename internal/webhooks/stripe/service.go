package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/mariposavintage/mariposa-backend/internal/orders"
	"github.com/mariposavintage/mariposa-backend/internal/reservations"
	"github.com/mariposavintage/mariposa-backend/internal/shipping"
	"github.com/mariposavintage/mariposa-backend/internal/webhooks"
	"github.com/mariposavintage/mariposa-backend/pkg/db/models"
	"github.com/mariposavintage/mariposa-backend/pkg/enums"
	pkgerrors "github.com/mariposavintage/mariposa-backend/pkg/errors"
	"github.com/mariposavintage/mariposa-backend/pkg/logger"
)

// metadataReferenceKey is stamped onto every Stripe payment intent at
// checkout so the webhook can find its order.
const metadataReferenceKey = "external_reference"

type ServiceParams struct {
	Orders       *orders.Repository
	Reservations reservations.Service
	Shipping     shipping.Service
	Guard        *webhooks.IdempotencyGuard
	Logger       *logger.Logger
}

// Service applies Stripe payment events to local orders. Stripe is the
// secondary gateway; only the payment intent lifecycle and refunds are
// handled.
type Service struct {
	orders       *orders.Repository
	reservations reservations.Service
	shipping     shipping.Service
	guard        *webhooks.IdempotencyGuard
	logg         *logger.Logger
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.Reservations == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reservations service required")
	}
	if params.Shipping == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "shipping service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		orders:       params.Orders,
		reservations: params.Reservations,
		shipping:     params.Shipping,
		guard:        params.Guard,
		logg:         params.Logger,
		now:          time.Now,
	}, nil
}

// HandleEvent processes one verified Stripe event. Unhandled event types are
// acknowledged so Stripe stops redelivering them.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	var status enums.OrderStatus
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		status = enums.OrderStatusPaid
	case stripe.EventTypePaymentIntentPaymentFailed:
		status = enums.OrderStatusPaymentFailed
	case stripe.EventTypeChargeRefunded:
		status = enums.OrderStatusRefunded
	default:
		return nil
	}

	if s.guard != nil && event.ID != "" {
		duplicate, err := s.guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "idempotency check failed, processing anyway")
		} else if duplicate {
			return nil
		}
	}

	err := s.applyEvent(ctx, event, status)
	if err != nil && s.guard != nil && event.ID != "" {
		if delErr := s.guard.Delete(ctx, event.ID); delErr != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", delErr.Error()), "failed to release idempotency key")
		}
	}
	return err
}

func (s *Service) applyEvent(ctx context.Context, event *stripe.Event, status enums.OrderStatus) error {
	paymentID, externalRef, err := extractReference(event)
	if err != nil {
		return err
	}
	if externalRef == "" {
		s.logg.Warn(s.logg.WithField(ctx, "event_id", event.ID), "stripe event carries no external reference, acknowledging")
		return nil
	}

	order, err := s.orders.FindByExternalReference(ctx, externalRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(s.logg.WithField(ctx, "external_reference", externalRef), "no order matches stripe event, acknowledging")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order by external reference")
	}

	var paidAt *time.Time
	if status == enums.OrderStatusPaid {
		now := s.now().UTC()
		paidAt = &now
	}
	if err := s.orders.UpdatePaymentState(ctx, order.ID, status, paymentID, paidAt); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order payment state")
	}

	if status == enums.OrderStatusPaid {
		return s.finalizePaidOrder(ctx, order)
	}
	return nil
}

// finalizePaidOrder mirrors the Mercado Pago flow: commit held stock, then
// buy the label best effort.
func (s *Service) finalizePaidOrder(ctx context.Context, order *models.Order) error {
	if _, err := s.reservations.CompleteForOrder(ctx, order.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete order reservations")
	}

	if order.ShippingServiceID == nil || *order.ShippingServiceID == 0 {
		return nil
	}

	labelID, err := s.shipping.PurchaseLabelForOrder(ctx, order)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "label purchase failed, order queued for manual fulfillment")
		if updateErr := s.orders.UpdateShippingState(ctx, order.ID, enums.ShippingStatusLabelFailed, "", ""); updateErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, updateErr, "record label failure")
		}
		if updateErr := s.orders.UpdatePaymentState(ctx, order.ID, enums.OrderStatusPendingShipping, "", nil); updateErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, updateErr, "record pending shipping")
		}
		return nil
	}

	if err := s.orders.UpdateShippingState(ctx, order.ID, enums.ShippingStatusLabelPurchased, labelID, ""); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record label purchase")
	}
	return nil
}

func extractReference(event *stripe.Event) (paymentID, externalRef string, err error) {
	switch event.Type {
	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return "", "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode charge event")
		}
		return charge.ID, charge.Metadata[metadataReferenceKey], nil
	default:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return "", "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
		}
		return intent.ID, intent.Metadata[metadataReferenceKey], nil
	}
}

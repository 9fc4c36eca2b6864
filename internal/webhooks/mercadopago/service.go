package mercadopagowebhook

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/mariposavintage/mariposa-backend/internal/orders"
	"github.com/mariposavintage/mariposa-backend/internal/reservations"
	"github.com/mariposavintage/mariposa-backend/internal/shipping"
	"github.com/mariposavintage/mariposa-backend/internal/webhooks"
	"github.com/mariposavintage/mariposa-backend/pkg/db/models"
	"github.com/mariposavintage/mariposa-backend/pkg/enums"
	pkgerrors "github.com/mariposavintage/mariposa-backend/pkg/errors"
	"github.com/mariposavintage/mariposa-backend/pkg/logger"
	"github.com/mariposavintage/mariposa-backend/pkg/mercadopago"
)

type paymentGateway interface {
	GetPayment(ctx context.Context, id string) (*mercadopago.Payment, error)
	GetMerchantOrder(ctx context.Context, id string) (*mercadopago.MerchantOrder, error)
}

type ServiceParams struct {
	Orders       *orders.Repository
	Reservations reservations.Service
	Shipping     shipping.Service
	Gateway      paymentGateway
	Guard        *webhooks.IdempotencyGuard
	Logger       *logger.Logger
}

// Service reconciles Mercado Pago notifications against local orders. The
// gateway payload is never trusted; the canonical resource is refetched on
// every delivery.
type Service struct {
	orders       *orders.Repository
	reservations reservations.Service
	shipping     shipping.Service
	gateway      paymentGateway
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
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		orders:       params.Orders,
		reservations: params.Reservations,
		shipping:     params.Shipping,
		gateway:      params.Gateway,
		guard:        params.Guard,
		logg:         params.Logger,
		now:          time.Now,
	}, nil
}

// HandleNotification processes one webhook delivery. Unrecognized topics are
// acknowledged without side effects so the provider stops redelivering them.
// There are no internal retries; redelivery is the durability mechanism, so a
// failed delivery unmarks its idempotency key before returning the error.
func (s *Service) HandleNotification(ctx context.Context, notif Notification, requestID string) error {
	switch notif.Topic {
	case TopicPayment, TopicMerchantOrder:
	default:
		s.logg.Info(s.logg.WithField(ctx, "topic", notif.Topic), "ignoring webhook topic")
		return nil
	}

	resourceID := notif.ResourceID()
	if resourceID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification has no resource id")
	}

	eventID := requestID
	if eventID == "" {
		eventID = notif.Topic + ":" + resourceID
	}
	if s.guard != nil {
		duplicate, err := s.guard.CheckAndMark(ctx, eventID)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "idempotency check failed, processing anyway")
		} else if duplicate {
			return nil
		}
	}

	err := s.reconcile(ctx, notif.Topic, resourceID)
	if err != nil && s.guard != nil {
		if delErr := s.guard.Delete(ctx, eventID); delErr != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", delErr.Error()), "failed to release idempotency key")
		}
	}
	return err
}

func (s *Service) reconcile(ctx context.Context, topic, resourceID string) error {
	var (
		status       string
		paymentID    string
		externalRef  string
		preferenceID string
		paidAt       *time.Time
	)

	switch topic {
	case TopicPayment:
		payment, err := s.gateway.GetPayment(ctx, resourceID)
		if err != nil {
			return s.reconcileUnverified(ctx, topic, resourceID, err)
		}
		status = payment.Status
		paymentID = strconv.FormatInt(payment.ID, 10)
		externalRef = payment.ExternalReference
		paidAt = payment.DateApproved

	case TopicMerchantOrder:
		merchantOrder, err := s.gateway.GetMerchantOrder(ctx, resourceID)
		if err != nil {
			return s.reconcileUnverified(ctx, topic, resourceID, err)
		}
		externalRef = merchantOrder.ExternalReference
		preferenceID = merchantOrder.PreferenceID

		picked, ok := pickPayment(merchantOrder.Payments)
		if !ok {
			s.logg.Info(s.logg.WithField(ctx, "merchant_order", resourceID), "merchant order has no payments yet")
			return nil
		}
		status = picked.Status
		paymentID = strconv.FormatInt(picked.ID, 10)
	}

	mapped, known := MapStatus(status)
	if !known {
		s.logg.Warn(s.logg.WithField(ctx, "payment_status", status), "unknown gateway status, treating as pending")
	}

	order, err := s.resolveOrder(ctx, externalRef, preferenceID)
	if err != nil {
		return err
	}
	if order == nil {
		ctx = s.logg.WithField(ctx, "external_reference", externalRef)
		s.logg.Warn(s.logg.WithField(ctx, "preference_id", preferenceID), "no order matches webhook, acknowledging")
		return nil
	}

	if mapped == enums.OrderStatusPaid && paidAt == nil {
		now := s.now().UTC()
		paidAt = &now
	}
	if err := s.orders.UpdatePaymentState(ctx, order.ID, mapped, paymentID, paidAt); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order payment state")
	}

	if mapped == enums.OrderStatusPaid {
		return s.finalizePaidOrder(ctx, order)
	}
	return nil
}

// finalizePaidOrder commits the stock held for the order and buys the
// shipping label. Label purchase is best effort: checkout already collected
// the money, so a carrier outage marks the order for manual fulfillment
// instead of failing the webhook.
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

// reconcileUnverified covers gateway outages: the canonical resource cannot
// be fetched, but the notification itself proves a payment event happened.
// The newest pending order is stamped paid so the buyer is not left hanging;
// the warn log flags it for later audit against the gateway dashboard.
func (s *Service) reconcileUnverified(ctx context.Context, topic, resourceID string, fetchErr error) error {
	if !isNumericID(resourceID) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fetchErr, "fetch gateway resource")
	}

	order, err := s.orders.FindMostRecentPending(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, fetchErr, "fetch gateway resource")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find pending order")
	}

	paymentID := ""
	if topic == TopicPayment {
		paymentID = resourceID
	}
	now := s.now().UTC()

	ctx = s.logg.WithField(ctx, "order_id", order.ID.String())
	ctx = s.logg.WithField(ctx, "resource_id", resourceID)
	s.logg.Warn(s.logg.WithField(ctx, "error", fetchErr.Error()), "gateway unreachable, stamping most recent pending order paid")

	if err := s.orders.UpdatePaymentState(ctx, order.ID, enums.OrderStatusPaid, paymentID, &now); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order payment state")
	}
	return s.finalizePaidOrder(ctx, order)
}

func (s *Service) resolveOrder(ctx context.Context, externalRef, preferenceID string) (*models.Order, error) {
	if externalRef != "" {
		order, err := s.orders.FindByExternalReference(ctx, externalRef)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order by external reference")
		}
	}
	if preferenceID != "" {
		order, err := s.orders.FindByPreferenceID(ctx, preferenceID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order by preference")
		}
	}
	return nil, nil
}

// pickPayment chooses which payment on a merchant order drives the status:
// the first approved one, otherwise the last reported.
func pickPayment(payments []mercadopago.MerchantOrderPayment) (mercadopago.MerchantOrderPayment, bool) {
	if len(payments) == 0 {
		return mercadopago.MerchantOrderPayment{}, false
	}
	for _, payment := range payments {
		if payment.Status == "approved" {
			return payment, true
		}
	}
	return payments[len(payments)-1], true
}

func isNumericID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

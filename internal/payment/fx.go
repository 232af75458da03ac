package payment

import (
	"github.com/smallbiznis/servicepoint/internal/payment/adapters/stripe"
	"github.com/smallbiznis/servicepoint/internal/payment/checkout"
	"github.com/smallbiznis/servicepoint/internal/payment/reconcile"
	"github.com/smallbiznis/servicepoint/internal/payment/refund"
	"github.com/smallbiznis/servicepoint/internal/payment/repository"
	"github.com/smallbiznis/servicepoint/internal/payment/status"
	"github.com/smallbiznis/servicepoint/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(stripe.NewClient),
	fx.Provide(stripe.NewVerifier),
	fx.Provide(reconcile.New),
	fx.Provide(checkout.New),
	fx.Provide(status.New),
	fx.Provide(refund.New),
	fx.Provide(webhook.NewService),
)

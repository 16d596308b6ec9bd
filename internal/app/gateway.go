package app

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/payment"
	gatewaymem "github.com/xenking/kart-checkout/internal/gateway/memory"
	"github.com/xenking/kart-checkout/internal/gateway/stripe"
)

// paymentGateway is the configured gateway driver. payPage is set only for
// the memory driver, which serves its own payment page.
type paymentGateway struct {
	api      payment.Gateway
	webhooks payment.WebhookVerifier
	payPage  http.HandlerFunc
}

func newGateway(cfg *Config, lg *zap.Logger) paymentGateway {
	if cfg.Gateway.Driver == DriverMemory {
		lg.Warn("Using the in-memory payment gateway, no real payments are taken")
		baseURL := cfg.Gateway.BaseURL
		if baseURL == "" {
			baseURL = "http://" + cfg.Addr
		}
		gw := gatewaymem.New(baseURL, []byte(cfg.Gateway.WebhookSecret))
		return paymentGateway{api: gw, webhooks: gw, payPage: gw.PayHandler}
	}

	client := stripe.New(stripe.Config{
		SecretKey:     cfg.Gateway.SecretKey,
		WebhookSecret: cfg.Gateway.WebhookSecret,
		Currency:      cfg.Gateway.Currency,
		Timeout:       cfg.Gateway.Timeout,
		BaseURL:       cfg.Gateway.BaseURL,
	}, lg)
	return paymentGateway{api: client, webhooks: client}
}

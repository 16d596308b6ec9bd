package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_RedirectURLs(t *testing.T) {
	cfg := &Config{ClientURL: "https://shop.example.com/"}
	assert.Equal(t, "https://shop.example.com/purchase-success?session_id={CHECKOUT_SESSION_ID}", cfg.SuccessURL())
	assert.Equal(t, "https://shop.example.com/purchase-cancel", cfg.CancelURL())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		gateway GatewayConfig
		wantErr string
	}{
		{name: "stripe", gateway: GatewayConfig{Driver: DriverStripe, SecretKey: "sk_test", Timeout: 1}},
		{name: "memory needs no key", gateway: GatewayConfig{Driver: DriverMemory, Timeout: 1}},
		{name: "stripe without key", gateway: GatewayConfig{Driver: DriverStripe, Timeout: 1}, wantErr: "secret key is required"},
		{name: "unknown driver", gateway: GatewayConfig{Driver: "paypal", Timeout: 1}, wantErr: "unknown gateway driver"},
		{name: "zero timeout", gateway: GatewayConfig{Driver: DriverMemory}, wantErr: "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Gateway: tt.gateway}
			err := cfg.validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db/checkout")
	t.Setenv("PORT", "9000")
	t.Setenv("STRIPE_SECRET_KEY", "sk_env")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_env")

	cfg := &Config{Addr: "0.0.0.0:8080", Gateway: GatewayConfig{WebhookSecret: "whsec_cfg"}}
	cfg.applyPlatformDefaults()

	assert.Equal(t, "postgres://db/checkout", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
	assert.Equal(t, "sk_env", cfg.Gateway.SecretKey)
	assert.Equal(t, "whsec_cfg", cfg.Gateway.WebhookSecret, "explicit config wins")
}

package app

import (
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/handler"
	"github.com/xenking/kart-checkout/pkg/health"
)

func TestNewRouter_Routes(t *testing.T) {
	h := handler.NewHandler(nil, nil, nil, nil, nil, nil)
	payPage := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusSeeOther) }

	routes := make(map[string]bool)
	require.NoError(t, chi.Walk(newRouter(health.New(), h, payPage),
		func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
			routes[method+" "+strings.TrimSuffix(route, "/")] = true
			return nil
		},
	))

	for _, want := range []string{
		"GET /livez",
		"GET /readyz",
		"POST /payment/create-checkout-session",
		"POST /payment/purchase-success",
		"POST /payment/webhook",
		"POST /coupons/validate",
		"GET /orders/{id}",
		"POST /orders/{id}/status",
		"GET /analytics",
		"GET /pay/{id}",
	} {
		assert.True(t, routes[want], "missing route %s", want)
	}
	for route := range routes {
		assert.False(t, strings.Contains(route, "/api/"), "unexpected prefix on %s", route)
	}
}

func TestNewRouter_NoPayPage(t *testing.T) {
	h := handler.NewHandler(nil, nil, nil, nil, nil, nil)

	var pay bool
	require.NoError(t, chi.Walk(newRouter(health.New(), h, nil),
		func(_, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
			pay = pay || strings.HasPrefix(route, "/pay/")
			return nil
		},
	))
	assert.False(t, pay)
}

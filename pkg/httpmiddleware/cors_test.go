package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRequest(method, origin string, preflight bool) *http.Request {
	req := httptest.NewRequest(method, "/payment/create-checkout-session", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	return req
}

func TestCORS_Preflight(t *testing.T) {
	h := CORS(CORSConfig{
		Origins:     []string{"https://Shop.example"},
		Headers:     []string{"Content-Type", "X-API-Key"},
		Credentials: true,
		MaxAge:      600,
	})(okHandler())

	t.Run("allowed origin", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, corsRequest(http.MethodOptions, "https://shop.example", true))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://Shop.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, corsMethods, w.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "Content-Type, X-API-Key", w.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
		assert.Contains(t, w.Header().Values("Vary"), "Origin")
	})

	t.Run("unknown origin", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, corsRequest(http.MethodOptions, "https://evil.example", true))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Methods"))
	})
}

func TestCORS_Requests(t *testing.T) {
	tests := []struct {
		name        string
		cfg         CORSConfig
		origin      string
		wantOrigin  string
		wantVary    bool
		wantExposed bool
	}{
		{
			name:        "listed origin",
			cfg:         CORSConfig{Origins: []string{"https://shop.example"}},
			origin:      "https://shop.example",
			wantOrigin:  "https://shop.example",
			wantVary:    true,
			wantExposed: true,
		},
		{
			name:     "unlisted origin",
			cfg:      CORSConfig{Origins: []string{"https://shop.example"}},
			origin:   "https://evil.example",
			wantVary: true,
		},
		{
			name:     "same origin request",
			cfg:      CORSConfig{Origins: []string{"https://shop.example"}},
			wantVary: true,
		},
		{
			name:        "any origin",
			cfg:         CORSConfig{Origins: []string{"*"}},
			origin:      "https://shop.example",
			wantOrigin:  "*",
			wantExposed: true,
		},
		{
			name:        "any origin with credentials echoes",
			cfg:         CORSConfig{Credentials: true},
			origin:      "https://shop.example",
			wantOrigin:  "https://shop.example",
			wantVary:    true,
			wantExposed: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reached bool
			h := CORS(tt.cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				reached = true
				w.WriteHeader(http.StatusOK)
			}))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, corsRequest(http.MethodPost, tt.origin, false))

			assert.True(t, reached)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantVary, len(w.Header().Values("Vary")) > 0)
			if tt.wantExposed {
				assert.Equal(t, HeaderRequestID, w.Header().Get("Access-Control-Expose-Headers"))
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Expose-Headers"))
			}
		})
	}
}

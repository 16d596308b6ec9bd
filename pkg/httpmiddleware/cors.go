package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

const corsMethods = "GET, POST, OPTIONS"

// CORSConfig lists the storefront origins allowed to call the API.
type CORSConfig struct {
	// Origins match case-insensitively. Empty or "*" allows any origin.
	Origins []string
	// Headers are the request headers browsers may send.
	Headers []string
	// Credentials allows cookies. The matching origin is echoed instead
	// of "*" since browsers reject the wildcard with credentials.
	Credentials bool
	// MaxAge caches preflight results, in seconds. Zero omits the header.
	MaxAge int
}

// CORS answers preflights with 204 without reaching next and decorates
// cross-origin responses. The request id header is exposed to scripts so the
// storefront can quote it in support requests.
func CORS(cfg CORSConfig) Middleware {
	anyOrigin := len(cfg.Origins) == 0
	origins := make(map[string]string, len(cfg.Origins))
	for _, o := range cfg.Origins {
		if o == "*" {
			anyOrigin = true
		}
		origins[strings.ToLower(o)] = o
	}
	wildcard := anyOrigin && !cfg.Credentials
	headers := strings.Join(cfg.Headers, ", ")

	allowOrigin := func(origin string) string {
		switch {
		case wildcard:
			return "*"
		case anyOrigin:
			return origin
		}
		return origins[strings.ToLower(origin)]
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if !wildcard {
				h.Add("Vary", "Origin")
			}
			origin := r.Header.Get("Origin")
			allowed := ""
			if origin != "" {
				allowed = allowOrigin(origin)
			}

			if origin != "" && r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				if allowed != "" {
					h.Set("Access-Control-Allow-Origin", allowed)
					h.Set("Access-Control-Allow-Methods", corsMethods)
					if headers != "" {
						h.Set("Access-Control-Allow-Headers", headers)
					}
					if cfg.Credentials {
						h.Set("Access-Control-Allow-Credentials", "true")
					}
					if cfg.MaxAge > 0 {
						h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if allowed != "" {
				h.Set("Access-Control-Allow-Origin", allowed)
				h.Set("Access-Control-Expose-Headers", HeaderRequestID)
				if cfg.Credentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

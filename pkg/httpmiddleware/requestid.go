package httpmiddleware

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

// maxRequestIDLen bounds client supplied ids before they reach the logs.
const maxRequestIDLen = 128

// RequestID echoes the client's X-Request-ID, or a fresh UUID when the header
// is missing or not printable ASCII (0x20-0x7E), and adds it as request_id to
// the context logger. It must run after InjectLogger.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderRequestID)
			if !printable(id) {
				id = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, id)

			ctx := r.Context()
			lg := zctx.From(ctx).With(zap.String("request_id", id))
			next.ServeHTTP(w, r.WithContext(zctx.Base(ctx, lg)))
		})
	}
}

func printable(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := range len(id) {
		if id[i] < 0x20 || id[i] > 0x7E {
			return false
		}
	}
	return true
}

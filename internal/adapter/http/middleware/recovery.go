package middleware

import (
	"net/http"

	"github.com/bnema/peakclips/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Recovery turns a handler panic into a 500 and logs the stack.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.Named("http").Error("handler panic",
				zap.Any("panic", rec),
				zap.String("method", r.Method),
				logger.UserString("path", r.URL.Path),
				zap.Stack("stack"),
			)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}

package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"
)

// Recovery возвращает middleware that перехватывает panic в handler'ах
// read-only поверхности монитора и отвечает 500 вместо падения процесса —
// движку (internal/engine) и batched-логгеру (internal/persist) это не
// мешает, они работают в собственных горутинах вне HTTP-сервера.
func Recovery(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error("panic in http handler",
						zap.Any("panic", err),
						zap.String("path", r.URL.Path),
						zap.ByteString("stack", debug.Stack()),
					)

					http.Error(
						w,
						fmt.Sprintf("Internal Server Error: %v", err),
						http.StatusInternalServerError,
					)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

package audit

import "net/http"

// Middleware attaches the recorder to every request context so
// handlers can call audit.FromContext without threading the store
// through constructors.
func Middleware(rec Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithRecorder(r.Context(), rec)))
		})
	}
}

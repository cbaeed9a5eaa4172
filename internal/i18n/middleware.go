package i18n

import "net/http"

// Middleware injects a localizer into every request context. A non-empty
// force pins every request to that language; otherwise the language is
// negotiated from the Accept-Language header.
func Middleware(force string) func(http.Handler) http.Handler {
	pinned := NewLocalizer(force)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := pinned
			if force == "" {
				loc = NewLocalizer(Negotiate(r.Header.Get("Accept-Language")))
			}
			ctx := WithLocalizer(r.Context(), loc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

package middleware

import "net/http"

// maxBodyBytes is the router's hard ceiling on request bodies
// (json/text/form/octet-stream alike) — 16 MiB.
const maxBodyBytes = 16 << 20

// BodyLimit caps request bodies at maxBodyBytes, returning the usual
// http.MaxBytesReader behavior (a read error once the limit is
// exceeded) rather than buffering the whole thing up front.
func BodyLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

package assetserve

import "net/http"

// Header represents an HTTP header key-value pair used in middleware
// configuration.
type Header struct {
	key   string
	value string
}

// corsHeaders go on every response the server writes, so browser scripts on
// another origin can always read it.
var corsHeaders = []Header{
	{"Access-Control-Allow-Origin", "*"},
	{"Access-Control-Allow-Methods", "GET, POST, OPTIONS"},
	{"Access-Control-Allow-Headers", "Content-Type"},
}

// CORSMiddleware sets the CORS headers on every response and answers
// preflight requests directly with an empty 200, on any path. Preflights
// never consult path resolution.
func CORSMiddleware(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, h := range corsHeaders {
			w.Header().Set(h.key, h.value)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	}
}

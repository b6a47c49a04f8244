package http

import (
	_ "embed"
	"net/http"
)

//go:embed web/index.html
var indexPage []byte

// ServeIndex serves the embedded single-page UI.
func ServeIndex() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(indexPage)
	}
}

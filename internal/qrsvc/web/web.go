package web

import (
	"embed"
	"io/fs"
	"net/http"

	log "github.com/sirupsen/logrus"
)

//go:embed assets
var assets embed.FS

func static() fs.FS {
	sub, err := fs.Sub(assets, "assets")
	if err != nil {
		panic(err)
	}
	return sub
}

func IndexHandler(w http.ResponseWriter, r *http.Request) {
	page, err := fs.ReadFile(static(), "index.html")
	if err != nil {
		log.Errorf("index.html missing from bundle: %v", err)
		http.Error(w, "page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func StaticHandler() http.Handler {
	return http.FileServer(http.FS(static()))
}

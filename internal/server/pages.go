package server

import (
	"bytes"
	"fmt"
	"html"
	"net/http"
	"os"
	"path/filepath"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/menta2k/thread-gauge/internal/utils"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

const pageTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>%s</title><link rel="stylesheet" href="/style.css"></head>
<body>
%s
</body>
</html>
`

// handlePage serves <static>/<name>.html, or renders <static>/<name>.md when only the
// markdown source exists.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request, name string) {
	if s.opts.StaticDir == "" {
		http.NotFound(w, r)
		return
	}

	htmlPath := filepath.Join(s.opts.StaticDir, name+".html")
	if utils.FileExists(htmlPath) {
		http.ServeFile(w, r, htmlPath)
		return
	}

	src, err := os.ReadFile(filepath.Join(s.opts.StaticDir, name+".md"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	var body bytes.Buffer
	if err := markdown.Convert(src, &body); err != nil {
		s.log.Error("Failed to render %s.md: %v", name, err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, pageTemplate, html.EscapeString(name), body.String())
}

package api

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"io/fs"
	"net/http"

	"hashbin/pkg/render"
	"hashbin/svc/util"

	"github.com/dustin/go-humanize"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var embedded embed.FS

var staticFS = mustSub(embedded, "static")

func mustSub(f fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(f, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

var pageNames = []string{"index", "about", "404", "text", "markdown", "restructuredtext", "asciicast"}

type pageData struct {
	Title   string
	View    *render.View
	About   template.HTML
	MaxSize int64
}

type pages struct {
	tmpl  map[string]*template.Template
	about template.HTML
}

func loadPages() *pages {
	funcs := template.FuncMap{
		"bytes": func(n int64) string { return humanize.IBytes(uint64(n)) },
		"json": func(v interface{}) (string, error) {
			b, err := json.Marshal(v)
			return string(b), err
		},
	}
	p := &pages{tmpl: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		p.tmpl[name] = template.Must(template.New("layout.html").Funcs(funcs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
	}
	src, err := fs.ReadFile(staticFS, "about.md")
	if err != nil {
		panic(err)
	}
	var buf bytes.Buffer
	if err := goldmark.New(goldmark.WithExtensions(extension.GFM)).Convert(src, &buf); err != nil {
		panic(err)
	}
	p.about = template.HTML(buf.String())
	return p
}

// write renders into a buffer first so a template error never leaves a
// half written page behind a 200.
func (p *pages) write(w http.ResponseWriter, name string, status int, data pageData) {
	t, ok := p.tmpl[name]
	if !ok {
		util.Error().Str("page", name).Msg("no template for page")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		util.Error().Err(err).Str("page", name).Msg("template execution failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

package render

import (
	"net/http"
	"net/url"
	"strings"

	"hashbin/pkg/domain"
	"hashbin/pkg/media"

	"github.com/pkg/errors"
)

// legacyCastExt is the extension old asciicast links were published with.
const legacyCastExt = "asciinema"

// Request is a parsed view path: /<id>[.<ext>][/<mode>].
type Request struct {
	ID            string
	Ext           string
	HasExt        bool
	Mode          string
	HasMode       bool
	TrailingSlash bool
	Query         url.Values
	RawQuery      string
}

// ParseRequest splits a view path. It reports false for paths with more than
// one mode segment.
func ParseRequest(path, rawQuery string) (Request, bool) {
	path = strings.TrimPrefix(path, "/")
	req := Request{RawQuery: rawQuery}
	req.Query, _ = url.ParseQuery(rawQuery)
	ref := path
	if i := strings.IndexByte(path, '/'); i >= 0 {
		ref, req.Mode = path[:i], path[i+1:]
		if strings.Contains(req.Mode, "/") {
			return req, false
		}
		req.HasMode = req.Mode != ""
		req.TrailingSlash = req.Mode == ""
	}
	req.ID = ref
	if i := strings.IndexByte(ref, '.'); i >= 0 {
		req.ID, req.Ext, req.HasExt = ref[:i], ref[i+1:], true
	}
	return req, req.ID != ""
}

type Dispatcher struct {
	renderers map[Mode]Renderer
}

type Option func(*Dispatcher)

// WithStyle selects the chroma style used by the text renderer.
func WithStyle(name string) Option {
	return func(d *Dispatcher) {
		d.renderers[ModeText] = textRenderer{style: name}
	}
}

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{renderers: map[Mode]Renderer{
		ModeRedirect:         redirectRenderer{},
		ModeText:             textRenderer{style: "github"},
		ModeMarkdown:         newMarkdownRenderer(),
		ModeRestructuredText: rstRenderer{},
		ModeAsciicast:        asciicastRenderer{},
		ModeRaw:              rawRenderer{},
	}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Resolve picks the view for a stored paste. Non-canonical forms of the path
// (a trailing dot, a trailing slash, the legacy asciicast extension) answer
// with a permanent redirect to the canonical one.
func (d *Dispatcher) Resolve(p *domain.Paste, req Request) (*View, error) {
	if req.HasExt && req.Ext == "" {
		ext, ok := media.MimeToExtension(p.Mime)
		if !ok {
			return nil, errors.Wrapf(domain.ErrUnguessableExtension, "mime %q", p.Mime)
		}
		loc := "/" + p.ID + "." + ext
		if req.HasMode {
			loc += "/" + req.Mode
		} else if req.TrailingSlash {
			loc += "/"
		}
		return moved(p.ID, loc, req.RawQuery), nil
	}

	if req.TrailingSlash {
		mode := d.slashMode(p, req)
		loc := "/" + p.ID
		if req.HasExt && mode.AllowsExtension() {
			loc += "." + req.Ext
		}
		return moved(p.ID, loc+"/"+mode.String(), req.RawQuery), nil
	}

	in := Input{Paste: p, Ext: req.Ext, HasExt: req.HasExt, Query: req.Query}

	if req.HasMode {
		mode, err := ParseMode(req.Mode)
		if err != nil {
			return nil, err
		}
		if mode == ModeAsciicast && strings.EqualFold(req.Ext, legacyCastExt) {
			return moved(p.ID, "/"+p.ID+".cast/"+ModeAsciicast.String(), req.RawQuery), nil
		}
		return d.renderers[mode].Render(in)
	}

	if req.HasExt {
		if strings.EqualFold(req.Ext, legacyCastExt) {
			return moved(p.ID, "/"+p.ID+".cast/"+ModeAsciicast.String(), req.RawQuery), nil
		}
		return d.renderers[ModeRaw].Render(in)
	}

	return d.renderers[ModeFromMime(p.Mime)].Render(in)
}

func (d *Dispatcher) slashMode(p *domain.Paste, req Request) Mode {
	if req.HasExt {
		if typ, ok := media.ExtensionToMime(req.Ext); ok {
			return ModeFromMime(typ)
		}
		return ModeRaw
	}
	if p.IsRedirect() {
		return ModeRedirect
	}
	if _, ok := media.MimeToExtension(p.Mime); ok {
		return ModeFromMime(p.Mime)
	}
	return ModeRaw
}

func moved(id, loc, rawQuery string) *View {
	if rawQuery != "" {
		loc += "?" + rawQuery
	}
	return &View{Kind: KindRedirect, Status: http.StatusMovedPermanently, Location: loc, ID: id}
}

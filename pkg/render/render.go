// Package render turns stored pastes into views: redirects, highlighted or
// formatted pages, and raw bytes.
package render

import (
	"bytes"
	"encoding/json"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"hashbin/pkg/domain"
	"hashbin/pkg/media"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

type Kind int

const (
	KindPage Kind = iota
	KindRaw
	KindRedirect
)

// View is what the HTTP layer writes out. Pages carry an HTML fragment to be
// placed in the mode's template; raw views carry bytes and a content type;
// redirects carry a location and status.
type View struct {
	Kind        Kind
	Mode        Mode
	Status      int
	Location    string
	ContentType string
	Body        []byte
	HTML        template.HTML
	Label       string
	ID          string
	Source      string
	Params      map[string]interface{}
}

type Input struct {
	Paste  *domain.Paste
	Ext    string
	HasExt bool
	Query  url.Values
}

type Renderer interface {
	Render(in Input) (*View, error)
}

// Decode returns the paste bytes as UTF-8 text.
func Decode(data []byte) (string, error) {
	out, _, err := transform.Bytes(encoding.UTF8Validator, data)
	if err != nil {
		return "", errors.Wrap(domain.ErrDecode, err.Error())
	}
	return string(out), nil
}

type redirectRenderer struct{}

func (redirectRenderer) Render(in Input) (*View, error) {
	if in.HasExt {
		return nil, errors.Wrap(domain.ErrExtensionNotAllowed, "redirect")
	}
	target, err := Decode(in.Paste.Data)
	if err != nil {
		return nil, err
	}
	return &View{
		Kind:     KindRedirect,
		Mode:     ModeRedirect,
		Status:   http.StatusFound,
		Location: strings.TrimSpace(target),
		ID:       in.Paste.ID,
	}, nil
}

type textRenderer struct {
	style string
}

func (r textRenderer) Render(in Input) (*View, error) {
	text, err := Decode(in.Paste.Data)
	if err != nil {
		return nil, err
	}
	lexer := r.lexer(in)
	style := styles.Get(r.style)
	if style == nil {
		style = styles.Fallback
	}
	it, err := lexer.Tokenise(nil, text)
	if err != nil {
		return nil, errors.Wrap(err, "tokenise")
	}
	var buf bytes.Buffer
	f := chromahtml.New(chromahtml.WithLineNumbers(true), chromahtml.TabWidth(4))
	if err := f.Format(&buf, style, it); err != nil {
		return nil, errors.Wrap(err, "format")
	}
	return &View{
		Kind:  KindPage,
		Mode:  ModeText,
		HTML:  template.HTML(buf.String()),
		Label: lexer.Config().Name,
		ID:    in.Paste.ID,
	}, nil
}

func (textRenderer) lexer(in Input) chroma.Lexer {
	var l chroma.Lexer
	if in.HasExt && in.Ext != "" {
		l = lexers.Match("paste." + in.Ext)
		if l == nil {
			l = lexers.Get(in.Ext)
		}
	}
	if l == nil {
		l = lexers.MatchMimeType(media.Base(in.Paste.Mime))
	}
	if l == nil {
		l = lexers.Fallback
	}
	return chroma.Coalesce(l)
}

type markdownRenderer struct {
	md goldmark.Markdown
}

func newMarkdownRenderer() markdownRenderer {
	return markdownRenderer{md: goldmark.New(goldmark.WithExtensions(extension.GFM))}
}

func (r markdownRenderer) Render(in Input) (*View, error) {
	text, err := Decode(in.Paste.Data)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return nil, errors.Wrap(err, "markdown")
	}
	if in.HasExt && strings.EqualFold(in.Ext, "html") {
		return &View{
			Kind:        KindRaw,
			Mode:        ModeMarkdown,
			ContentType: "text/html; charset=utf-8",
			Body:        buf.Bytes(),
			ID:          in.Paste.ID,
		}, nil
	}
	return &View{
		Kind: KindPage,
		Mode: ModeMarkdown,
		HTML: template.HTML(buf.String()),
		ID:   in.Paste.ID,
	}, nil
}

type rstRenderer struct{}

func (rstRenderer) Render(in Input) (*View, error) {
	if in.HasExt {
		return nil, errors.Wrap(domain.ErrExtensionNotAllowed, "restructuredtext")
	}
	text, err := Decode(in.Paste.Data)
	if err != nil {
		return nil, err
	}
	return &View{
		Kind: KindPage,
		Mode: ModeRestructuredText,
		HTML: template.HTML(renderRST(text)),
		ID:   in.Paste.ID,
	}, nil
}

type asciicastRenderer struct{}

func (asciicastRenderer) Render(in Input) (*View, error) {
	return &View{
		Kind:   KindPage,
		Mode:   ModeAsciicast,
		Source: "/" + in.Paste.ID + ".cast",
		Params: PlayerParams(in.Query),
		ID:     in.Paste.ID,
	}, nil
}

// PlayerParams converts query parameters into player options. Values that
// parse as JSON keep their JSON type; anything else stays a string.
func PlayerParams(q url.Values) map[string]interface{} {
	params := make(map[string]interface{}, len(q))
	for k, vs := range q {
		if len(vs) == 0 {
			continue
		}
		var v interface{}
		if err := json.Unmarshal([]byte(vs[0]), &v); err != nil {
			v = vs[0]
		}
		params[k] = v
	}
	return params
}

type rawRenderer struct{}

func (rawRenderer) Render(in Input) (*View, error) {
	typ := in.Paste.Mime
	if in.HasExt {
		t, ok := media.ExtensionToMime(in.Ext)
		if !ok {
			return nil, errors.Wrapf(domain.ErrUnresolvableExtension, "extension %q", in.Ext)
		}
		typ = t
	}
	if typ == media.Redirect || typ == "" {
		typ = media.TextPlain
	}
	if media.IsText(typ) && !strings.Contains(typ, "charset") && utf8.Valid(in.Paste.Data) {
		typ += "; charset=utf-8"
	}
	return &View{
		Kind:        KindRaw,
		Mode:        ModeRaw,
		ContentType: typ,
		Body:        in.Paste.Data,
		ID:          in.Paste.ID,
	}, nil
}

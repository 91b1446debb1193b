package render

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"hashbin/pkg/domain"
	"hashbin/pkg/media"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paste(data, mime string) *domain.Paste {
	return domain.NewPaste([]byte(data), domain.CreateParams{Mime: mime}, time.Now())
}

func resolve(t *testing.T, p *domain.Paste, path string) (*View, error) {
	t.Helper()
	raw := ""
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path, raw = path[:i], path[i+1:]
	}
	req, ok := ParseRequest(path, raw)
	require.True(t, ok, path)
	return NewDispatcher().Resolve(p, req)
}

func TestParseMode(t *testing.T) {
	for name, want := range map[string]Mode{
		"txt": ModeText, "text": ModeText, "md": ModeMarkdown, "markdown": ModeMarkdown,
		"rst": ModeRestructuredText, "restructuredtext": ModeRestructuredText,
		"cast": ModeAsciicast, "asciicast": ModeAsciicast, "raw": ModeRaw, "redirect": ModeRedirect,
		"TXT": ModeText,
	} {
		got, err := ParseMode(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseMode("foo")
	assert.True(t, errors.Is(err, domain.ErrUnknownMode))
}

func TestModeFromMime(t *testing.T) {
	assert.Equal(t, ModeRedirect, ModeFromMime(media.Redirect))
	assert.Equal(t, ModeText, ModeFromMime("text/plain"))
	assert.Equal(t, ModeMarkdown, ModeFromMime("text/markdown; charset=utf-8"))
	assert.Equal(t, ModeRestructuredText, ModeFromMime("text/x-rst"))
	assert.Equal(t, ModeRestructuredText, ModeFromMime("text/prs.fallenstein.rst"))
	assert.Equal(t, ModeAsciicast, ModeFromMime("application/x-asciicast"))
	assert.Equal(t, ModeRaw, ModeFromMime("application/pdf"))
}

func TestParseRequest(t *testing.T) {
	req, ok := ParseRequest("/abc.md/text", "")
	require.True(t, ok)
	assert.Equal(t, Request{ID: "abc", Ext: "md", HasExt: true, Mode: "text", HasMode: true, Query: req.Query}, req)

	req, ok = ParseRequest("/abc.", "")
	require.True(t, ok)
	assert.True(t, req.HasExt)
	assert.Equal(t, "", req.Ext)

	req, ok = ParseRequest("/abc/", "")
	require.True(t, ok)
	assert.True(t, req.TrailingSlash)
	assert.False(t, req.HasMode)

	_, ok = ParseRequest("/abc/txt/more", "")
	assert.False(t, ok)
	_, ok = ParseRequest("/.txt", "")
	assert.False(t, ok)
}

func TestResolveRedirect(t *testing.T) {
	p := paste("http://www.google.com", media.Redirect)
	for _, path := range []string{"/" + p.ID, "/" + p.ID + "/redirect"} {
		v, err := resolve(t, p, path)
		require.NoError(t, err, path)
		assert.Equal(t, KindRedirect, v.Kind)
		assert.Equal(t, http.StatusFound, v.Status)
		assert.Equal(t, "http://www.google.com", v.Location)
	}
	_, err := resolve(t, p, "/"+p.ID+".foo/redirect")
	assert.Equal(t, http.StatusBadRequest, domain.Status(err))
}

func TestResolveMarkdown(t *testing.T) {
	p := paste("# Title\n\n| a | b |\n|---|---|\n| 1 | 2 |\n", "text/markdown")
	for _, path := range []string{"/" + p.ID, "/" + p.ID + "/md", "/" + p.ID + ".md/md"} {
		v, err := resolve(t, p, path)
		require.NoError(t, err, path)
		assert.Equal(t, KindPage, v.Kind, path)
		assert.Contains(t, string(v.HTML), "<h1>Title</h1>")
		assert.Contains(t, string(v.HTML), "<table>")
	}
	v, err := resolve(t, p, "/"+p.ID+".md")
	require.NoError(t, err)
	assert.Equal(t, KindRaw, v.Kind)
	assert.Equal(t, "text/markdown; charset=utf-8", v.ContentType)

	v, err = resolve(t, p, "/"+p.ID+".html/md")
	require.NoError(t, err)
	assert.Equal(t, KindRaw, v.Kind)
	assert.Equal(t, "text/html; charset=utf-8", v.ContentType)
}

func TestResolveRST(t *testing.T) {
	p := paste("Title\n=====\n\nSome *text* here::\n\n    code <b>\n", "text/x-rst")
	for _, path := range []string{"/" + p.ID, "/" + p.ID + "/rst"} {
		v, err := resolve(t, p, path)
		require.NoError(t, err)
		assert.Contains(t, string(v.HTML), "<h1>Title</h1>")
		assert.Contains(t, string(v.HTML), "<em>text</em>")
		assert.Contains(t, string(v.HTML), "<pre>code &lt;b&gt;</pre>")
	}
	_, err := resolve(t, p, "/"+p.ID+".foo/rst")
	assert.Equal(t, http.StatusBadRequest, domain.Status(err))
}

func TestResolveText(t *testing.T) {
	p := paste("package main\n", "text/plain")
	for _, path := range []string{"/" + p.ID, "/" + p.ID + "/txt", "/" + p.ID + ".go/text"} {
		v, err := resolve(t, p, path)
		require.NoError(t, err, path)
		assert.Equal(t, ModeText, v.Mode)
		assert.Contains(t, string(v.HTML), "package")
	}
	v, err := resolve(t, p, "/"+p.ID+".go/text")
	require.NoError(t, err)
	assert.Equal(t, "Go", v.Label)

	_, err = resolve(t, p, "/"+p.ID+"/foo")
	assert.Equal(t, http.StatusBadRequest, domain.Status(err))
}

func TestResolveTextRejectsInvalidUTF8(t *testing.T) {
	p := paste("\xff\xfe\xfd", "text/plain")
	_, err := resolve(t, p, "/"+p.ID+"/txt")
	assert.Equal(t, http.StatusUnprocessableEntity, domain.Status(err))
}

func TestResolveExtensions(t *testing.T) {
	p := paste("abc", "text/plain")
	for ext, ct := range map[string]string{
		"cast": "application/x-asciicast",
		"md":   "text/markdown; charset=utf-8",
		"rst":  "text/x-rst; charset=utf-8",
		"txt":  "text/plain; charset=utf-8",
	} {
		v, err := resolve(t, p, "/"+p.ID+"."+ext)
		require.NoError(t, err, ext)
		assert.Equal(t, KindRaw, v.Kind)
		assert.Equal(t, ct, v.ContentType, ext)
		assert.Equal(t, []byte("abc"), v.Body)
	}
	_, err := resolve(t, p, "/"+p.ID+".foo")
	assert.Equal(t, http.StatusBadRequest, domain.Status(err))
}

func TestResolveAsciicast(t *testing.T) {
	p := paste(`{"version": 2, "width": 80, "height": 24}`, "application/x-asciicast")

	v, err := resolve(t, p, "/"+p.ID+".asciinema?theme=solarized")
	require.NoError(t, err)
	assert.Equal(t, http.StatusMovedPermanently, v.Status)
	assert.Contains(t, v.Location, "theme=solarized")
	assert.NotContains(t, v.Location, ".asciinema")

	for _, path := range []string{"/" + p.ID, "/" + p.ID + "/cast", "/" + p.ID + ".cast/cast"} {
		v, err := resolve(t, p, path+"?speed=2&title=demo&autoplay=true")
		require.NoError(t, err, path)
		assert.Equal(t, ModeAsciicast, v.Mode)
		assert.Equal(t, "/"+p.ID+".cast", v.Source)
		assert.Equal(t, float64(2), v.Params["speed"])
		assert.Equal(t, "demo", v.Params["title"])
		assert.Equal(t, true, v.Params["autoplay"])
	}
}

func TestResolveTrailingDot(t *testing.T) {
	p := paste("abc", "text/plain")
	v, err := resolve(t, p, "/"+p.ID+".")
	require.NoError(t, err)
	assert.Equal(t, http.StatusMovedPermanently, v.Status)
	assert.Equal(t, "/"+p.ID+".txt", v.Location)

	v, err = resolve(t, p, "/"+p.ID+"./txt")
	require.NoError(t, err)
	assert.Equal(t, "/"+p.ID+".txt/txt", v.Location)

	odd := paste("abc", "fo/shizzle")
	_, err = resolve(t, odd, "/"+odd.ID+".")
	assert.True(t, errors.Is(err, domain.ErrUnguessableExtension))
	assert.Equal(t, http.StatusUnprocessableEntity, domain.Status(err))
}

func TestResolveTrailingSlash(t *testing.T) {
	p := paste("abc", "text/plain")
	v, err := resolve(t, p, "/"+p.ID+"/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusMovedPermanently, v.Status)
	assert.Equal(t, "/"+p.ID+"/text", v.Location)

	v, err = resolve(t, p, "/"+p.ID+".txt/")
	require.NoError(t, err)
	assert.Equal(t, "/"+p.ID+".txt/text", v.Location)

	v, err = resolve(t, p, "/"+p.ID+".rst/")
	require.NoError(t, err)
	assert.Equal(t, "/"+p.ID+"/restructuredtext", v.Location)

	odd := paste("abc", "fo/shizzle")
	v, err = resolve(t, odd, "/"+odd.ID+"/")
	require.NoError(t, err)
	assert.Equal(t, "/"+odd.ID+"/raw", v.Location)
}

func TestResolveRawRedirectPaste(t *testing.T) {
	p := paste("http://example.com", media.Redirect)
	v, err := resolve(t, p, "/"+p.ID+"/raw")
	require.NoError(t, err)
	assert.Equal(t, "text/plain; charset=utf-8", v.ContentType)
}

func TestPlayerParams(t *testing.T) {
	params := PlayerParams(map[string][]string{
		"poster": {"data:text/plain,Prepare to be amazed"},
		"cols":   {"100"},
		"loop":   {"false"},
		"empty":  {},
	})
	assert.Equal(t, "data:text/plain,Prepare to be amazed", params["poster"])
	assert.Equal(t, float64(100), params["cols"])
	assert.Equal(t, false, params["loop"])
	_, ok := params["empty"]
	assert.False(t, ok)
}

// Package media resolves the media type of pastes and maps between media
// types and file extensions.
package media

import (
	"mime"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

// Redirect marks a paste whose bytes are a URL to redirect to rather than a
// renderable blob.
const Redirect = "redirect"

const (
	TextPlain   = "text/plain"
	OctetStream = "application/octet-stream"
	Asciicast   = "application/x-asciicast"
	RST         = "text/x-rst"
)

// entries lists extension/type pairs. The first extension listed for a type
// is the one MimeToExtension prefers.
var entries = []struct{ ext, typ string }{
	{"txt", TextPlain},
	{"text", TextPlain},
	{"log", TextPlain},
	{"md", "text/markdown"},
	{"markdown", "text/markdown"},
	{"rst", RST},
	{"cast", Asciicast},
	{"html", "text/html"},
	{"htm", "text/html"},
	{"css", "text/css"},
	{"csv", "text/csv"},
	{"js", "text/javascript"},
	{"mjs", "text/javascript"},
	{"json", "application/json"},
	{"xml", "application/xml"},
	{"yaml", "application/yaml"},
	{"yml", "application/yaml"},
	{"toml", "application/toml"},
	{"ini", "text/plain"},
	{"diff", "text/x-diff"},
	{"patch", "text/x-diff"},
	{"sh", "application/x-sh"},
	{"py", "text/x-python"},
	{"go", "text/x-go"},
	{"c", "text/x-c"},
	{"h", "text/x-c"},
	{"cpp", "text/x-c++"},
	{"cc", "text/x-c++"},
	{"rs", "text/rust"},
	{"java", "text/x-java"},
	{"rb", "text/x-ruby"},
	{"pl", "text/x-perl"},
	{"php", "application/x-httpd-php"},
	{"sql", "application/sql"},
	{"tex", "application/x-tex"},
	{"svg", "image/svg+xml"},
	{"png", "image/png"},
	{"jpg", "image/jpeg"},
	{"jpeg", "image/jpeg"},
	{"gif", "image/gif"},
	{"webp", "image/webp"},
	{"ico", "image/vnd.microsoft.icon"},
	{"bmp", "image/bmp"},
	{"pdf", "application/pdf"},
	{"zip", "application/zip"},
	{"gz", "application/gzip"},
	{"tar", "application/x-tar"},
	{"xz", "application/x-xz"},
	{"7z", "application/x-7z-compressed"},
	{"mp3", "audio/mpeg"},
	{"ogg", "audio/ogg"},
	{"wav", "audio/wav"},
	{"flac", "audio/flac"},
	{"mp4", "video/mp4"},
	{"webm", "video/webm"},
	{"wasm", "application/wasm"},
	{"bin", OctetStream},
}

var (
	byExt  = map[string]string{}
	byType = map[string]string{}
)

func init() {
	for _, e := range entries {
		if _, ok := byExt[e.ext]; !ok {
			byExt[e.ext] = e.typ
		}
		if _, ok := byType[e.typ]; !ok {
			byType[e.typ] = e.ext
		}
	}
	// legacy and alternative spellings that should still map to an extension
	byType["text/prs.fallenstein.rst"] = "rst"
	byType["application/asciicast+json"] = "cast"
	byType["text/x-markdown"] = "md"
	byType["application/javascript"] = "js"
	byType["text/xml"] = "xml"
	byType["text/x-yaml"] = "yaml"
	byType["application/x-yaml"] = "yaml"
}

// Base strips parameters from a media type and lowercases it.
func Base(typ string) string {
	if i := strings.IndexByte(typ, ';'); i >= 0 {
		typ = typ[:i]
	}
	return strings.ToLower(strings.TrimSpace(typ))
}

// ResolveCreate picks the media type stored with a new paste. An explicit
// type wins; a bare subtype such as "plain" is taken as a text type. Without
// one, the filename extension is tried before sniffing the bytes.
func ResolveCreate(explicit, filename string, data []byte) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		if strings.Contains(explicit, "/") {
			return Base(explicit)
		}
		return "text/" + strings.ToLower(explicit)
	}
	if filename != "" && strings.Contains(path.Base(filename), ".") {
		if typ, ok := ExtensionToMime(filename); ok {
			return typ
		}
	}
	return Sniff(data)
}

// Sniff detects the media type from content. Empty input is plain text.
func Sniff(data []byte) string {
	if len(data) == 0 {
		return TextPlain
	}
	typ := Base(mimetype.Detect(data).String())
	if typ == "" {
		return OctetStream
	}
	// mimetype calls any control-free bytes text, valid UTF-8 or not
	if strings.HasPrefix(typ, "text/") && !utf8.Valid(data) {
		return OctetStream
	}
	return typ
}

// MimeToExtension returns the preferred extension, without the dot, for a
// media type.
func MimeToExtension(typ string) (string, bool) {
	typ = Base(typ)
	if typ == "" || typ == Redirect {
		return "", false
	}
	if ext, ok := byType[typ]; ok {
		return ext, true
	}
	exts, err := mime.ExtensionsByType(typ)
	if err != nil || len(exts) == 0 {
		return "", false
	}
	return strings.TrimPrefix(exts[0], "."), true
}

// ExtensionToMime guesses a media type from an extension, a file name or a
// URL path.
func ExtensionToMime(name string) (string, bool) {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	name = path.Base(name)
	ext := name
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		ext = name[i+1:]
	}
	ext = strings.ToLower(ext)
	if ext == "" || ext == "." || ext == "/" {
		return "", false
	}
	if typ, ok := byExt[ext]; ok {
		return typ, true
	}
	if typ := mime.TypeByExtension("." + ext); typ != "" {
		return Base(typ), true
	}
	return "", false
}

func IsText(typ string) bool {
	return strings.HasPrefix(Base(typ), "text/")
}

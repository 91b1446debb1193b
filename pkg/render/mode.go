package render

import (
	"strings"

	"hashbin/pkg/domain"
	"hashbin/pkg/media"

	"github.com/pkg/errors"
)

type Mode int

const (
	ModeRaw Mode = iota
	ModeRedirect
	ModeText
	ModeMarkdown
	ModeRestructuredText
	ModeAsciicast
)

var modeNames = [...]string{
	ModeRaw:              "raw",
	ModeRedirect:         "redirect",
	ModeText:             "text",
	ModeMarkdown:         "markdown",
	ModeRestructuredText: "restructuredtext",
	ModeAsciicast:        "asciicast",
}

var modeAliases = map[string]Mode{
	"raw":              ModeRaw,
	"redirect":         ModeRedirect,
	"text":             ModeText,
	"txt":              ModeText,
	"markdown":         ModeMarkdown,
	"md":               ModeMarkdown,
	"restructuredtext": ModeRestructuredText,
	"rst":              ModeRestructuredText,
	"asciicast":        ModeAsciicast,
	"cast":             ModeAsciicast,
}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "unknown"
}

// AllowsExtension reports whether a request extension may accompany the mode.
func (m Mode) AllowsExtension() bool {
	return m != ModeRedirect && m != ModeRestructuredText
}

// ParseMode maps a mode name or one of its short aliases to a Mode.
func ParseMode(name string) (Mode, error) {
	if m, ok := modeAliases[strings.ToLower(name)]; ok {
		return m, nil
	}
	return ModeRaw, errors.Wrapf(domain.ErrUnknownMode, "mode %q", name)
}

const legacyRST = "text/prs.fallenstein.rst"

// ModeFromMime infers the rendering mode of a stored media type.
func ModeFromMime(typ string) Mode {
	if typ == media.Redirect {
		return ModeRedirect
	}
	switch t := media.Base(typ); {
	case t == "text/markdown", t == "text/x-markdown":
		return ModeMarkdown
	case t == media.RST, t == legacyRST:
		return ModeRestructuredText
	case t == media.Asciicast, t == "application/asciicast+json":
		return ModeAsciicast
	case strings.HasPrefix(t, "text/"):
		return ModeText
	}
	return ModeRaw
}

package domain

import (
	"testing"
	"time"

	"hashbin/pkg/media"

	"github.com/stretchr/testify/assert"
)

func TestNewPasteMime(t *testing.T) {
	tests := []struct {
		name   string
		params CreateParams
		data   string
		want   string
	}{
		{"bare subtype", CreateParams{Mime: "x-rst"}, "abc", "text/x-rst"},
		{"bare plain", CreateParams{Mime: "plain"}, "abc", "text/plain"},
		{"full type normalized", CreateParams{Mime: " Text/Markdown; charset=utf-8"}, "abc", "text/markdown"},
		{"redirect kept", CreateParams{Mime: media.Redirect}, "http://example.com", media.Redirect},
		{"filename", CreateParams{Filename: "doc.pdf"}, "abc", "application/pdf"},
		{"sniffed", CreateParams{}, "abc", "text/plain"},
		{"sniffed binary", CreateParams{}, "\xff\xfe\x80", media.OctetStream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPaste([]byte(tt.data), tt.params, time.Now())
			assert.Equal(t, tt.want, p.Mime)
			assert.True(t, p.Verify())
		})
	}
}

func TestNewPasteTimestamp(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	p := NewPaste(nil, CreateParams{}, now)
	assert.Equal(t, now.UTC(), p.Timestamp)
	assert.Equal(t, time.UTC, p.Timestamp.Location())
	assert.NotNil(t, p.Data)
}

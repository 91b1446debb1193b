package domain

import (
	"time"

	"hashbin/pkg/hashid"
	"hashbin/pkg/media"
)

type Paste struct {
	ID        string     `json:"hashid"`
	IP        string     `json:"ip,omitempty"`
	Mime      string     `json:"mime"`
	Sunset    *time.Time `json:"sunset,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	Data      []byte     `json:"data"`
}

type CreateParams struct {
	IP        string
	Mime      string
	Filename  string
	Sunset    *time.Time
	Timestamp time.Time
}

// NewPaste derives the identifier from data and fills in the defaults a
// stored row must carry: a normalized mime type and a creation time.
func NewPaste(data []byte, params CreateParams, now time.Time) *Paste {
	if data == nil {
		data = []byte{}
	}
	p := &Paste{
		ID:        hashid.Digest(data),
		IP:        params.IP,
		Mime:      params.Mime,
		Sunset:    params.Sunset,
		Timestamp: params.Timestamp,
		Data:      data,
	}
	if p.Mime != media.Redirect {
		p.Mime = media.ResolveCreate(params.Mime, params.Filename, data)
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = now
	}
	p.Timestamp = p.Timestamp.UTC()
	if p.Sunset != nil {
		s := p.Sunset.UTC()
		p.Sunset = &s
	}
	return p
}

// Verify reports whether the identifier still matches the stored bytes.
func (p *Paste) Verify() bool {
	return hashid.Digest(p.Data) == p.ID
}

func (p *Paste) IsRedirect() bool {
	return p.Mime == media.Redirect
}

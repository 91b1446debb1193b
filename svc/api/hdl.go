package api

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hashbin/cfg"
	"hashbin/metrics"
	"hashbin/pkg/domain"
	"hashbin/pkg/hashid"
	"hashbin/pkg/media"
	"hashbin/pkg/render"
	"hashbin/svc/lim"
	"hashbin/svc/svc"
	"hashbin/svc/util"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
)

// maxFormOverhead is the room left for multipart framing and the other form
// fields on top of the paste itself.
const maxFormOverhead = 1 << 20

type Hdl struct {
	paste    *svc.Paste
	cfg      *cfg.Cfg
	dispatch *render.Dispatcher
	pages    *pages
}

func NewHdl(p *svc.Paste, c *cfg.Cfg, d *render.Dispatcher) *Hdl {
	return &Hdl{paste: p, cfg: c, dispatch: d, pages: loadPages()}
}

type CreateResp struct {
	Identifier string `json:"identifier"`
	HashID     string `json:"hashid"`
	Link       string `json:"link"`
}

// CreatePaste accepts a urlencoded or multipart form. A redirect target wins
// over inline content, which wins over an uploaded file.
func (h *Hdl) CreatePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	if err := parseForm(r); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErr(w, domain.ErrPasteTooLarge, requestID)
			return
		}
		log.Warn().Err(err).Msg("invalid form")
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}
	sunset, err := parseSunset(r)
	if err != nil {
		log.Warn().Err(err).Msg("invalid sunset")
		writeErr(w, err, requestID)
		return
	}
	data, params, err := formContent(r)
	if err != nil {
		writeErr(w, err, requestID)
		return
	}
	params.IP = lim.GetRealIP(r, h.cfg.TrustedProxies)
	params.Sunset = sunset

	id, err := h.paste.Create(r.Context(), data, params)
	if err != nil {
		if domain.Status(err) >= 500 {
			log.Error().Err(err).Msg("failed to create paste")
		} else {
			log.Warn().Err(err).Msg("paste rejected")
		}
		writeErr(w, err, requestID)
		return
	}
	ev := log.Info().Str("paste_id", id).Int("size", len(data)).Str("ip", util.RedactIP(params.IP))
	if params.Mime == media.Redirect {
		ev = ev.Str("target", util.RedactPreview(string(data)))
	}
	ev.Msg("paste created")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateResp{
		Identifier: id,
		HashID:     id,
		Link:       baseURL(r) + id,
	})
}

func parseForm(r *http.Request) error {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		return r.ParseMultipartForm(32 << 20)
	}
	return r.ParseForm()
}

// parseSunset reads the lifetime in seconds, counted from the request's Date
// header when it has one.
func parseSunset(r *http.Request) (*time.Time, error) {
	raw, ok := r.PostForm["sunset"]
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	secs, err := strconv.ParseInt(strings.TrimSpace(raw[0]), 10, 64)
	if err != nil {
		return nil, errors.Wrap(domain.ErrInvalidSunset, err.Error())
	}
	if secs <= 0 {
		return nil, errors.Wrapf(domain.ErrInvalidSunset, "sunset %d not in the future", secs)
	}
	base := time.Now().UTC()
	if d := r.Header.Get("Date"); d != "" {
		if t, err := http.ParseTime(d); err == nil {
			base = t.UTC()
		}
	}
	t := base.Add(time.Duration(secs) * time.Second)
	return &t, nil
}

func formContent(r *http.Request) ([]byte, domain.CreateParams, error) {
	var params domain.CreateParams
	mimeHint := strings.TrimSpace(r.PostFormValue("mime"))
	if target := firstValue(r, "r", "redirect"); target != "" {
		params.Mime = media.Redirect
		return []byte(target), params, nil
	}
	if content := firstValue(r, "content", "c"); content != "" {
		params.Mime = mimeHint
		return []byte(content), params, nil
	}
	fh := firstFile(r, "content", "c")
	if fh == nil {
		return nil, params, domain.ErrContentRequired
	}
	f, err := fh.Open()
	if err != nil {
		return nil, params, errors.Wrap(domain.ErrInvalidRequest, err.Error())
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, params, errors.Wrap(domain.ErrInvalidRequest, err.Error())
	}
	params.Filename = fh.Filename
	params.Mime = mimeHint
	// an uploaded file's bare mime hint is an extension, e.g. "pdf"
	if mimeHint != "" && !strings.Contains(mimeHint, "/") {
		if typ, ok := media.ExtensionToMime(mimeHint); ok {
			params.Mime = typ
		}
	}
	return data, params, nil
}

func firstValue(r *http.Request, keys ...string) string {
	for _, k := range keys {
		if v := r.PostFormValue(k); v != "" {
			return v
		}
	}
	return ""
}

func firstFile(r *http.Request, keys ...string) *multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	for _, k := range keys {
		if fhs := r.MultipartForm.File[k]; len(fhs) > 0 {
			return fhs[0]
		}
	}
	return nil
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	path := r.URL.Path
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return scheme + "://" + r.Host + path
}

// View serves /<id>[.<ext>][/<mode>].
func (h *Hdl) View(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	req, ok := render.ParseRequest(r.URL.Path, r.URL.RawQuery)
	if !ok || !hashid.Valid(req.ID) {
		h.NotFound(w, r)
		return
	}
	p, err := h.paste.Query(r.Context(), req.ID)
	if err != nil {
		log.Error().Err(err).Str("paste_id", req.ID).Msg("query failed")
		writeErr(w, err, requestID)
		return
	}
	if p == nil {
		h.NotFound(w, r)
		return
	}
	view, err := h.dispatch.Resolve(p, req)
	if err != nil {
		log.Debug().Err(err).Str("paste_id", req.ID).Str("path", r.URL.Path).Msg("view rejected")
		writeErr(w, err, requestID)
		return
	}
	if view.Status != http.StatusMovedPermanently {
		metrics.Renders.WithLabelValues(view.Mode.String()).Inc()
	}
	h.writeView(w, view)
}

func (h *Hdl) writeView(w http.ResponseWriter, v *render.View) {
	switch v.Kind {
	case render.KindRedirect:
		w.Header().Set("Location", v.Location)
		w.WriteHeader(v.Status)
	case render.KindRaw:
		w.Header().Set("Content-Type", v.ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(v.Body)))
		// stored bytes are untrusted; never let them script this origin
		w.Header().Set("Content-Security-Policy", "sandbox")
		w.WriteHeader(http.StatusOK)
		w.Write(v.Body)
	default:
		h.pages.write(w, v.Mode.String(), http.StatusOK, pageData{Title: v.ID, View: v})
	}
}

func (h *Hdl) Index(w http.ResponseWriter, r *http.Request) {
	h.pages.write(w, "index", http.StatusOK, pageData{Title: "hashbin", MaxSize: h.cfg.MaxPasteSize})
}

func (h *Hdl) About(w http.ResponseWriter, r *http.Request) {
	h.pages.write(w, "about", http.StatusOK, pageData{Title: "about", About: h.pages.about})
}

func (h *Hdl) AboutMarkdown(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Location", "/about")
	w.WriteHeader(http.StatusMovedPermanently)
}

func (h *Hdl) Static() http.Handler {
	return http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
}

func (h *Hdl) NotFound(w http.ResponseWriter, r *http.Request) {
	h.pages.write(w, "404", http.StatusNotFound, pageData{Title: "Paste Not Found"})
}

// writeErr answers with {"error","code","request_id"}. Details of server
// side failures are logged, not returned.
func writeErr(w http.ResponseWriter, err error, requestID string) {
	statusCode := domain.Status(err)
	detail := domain.ToResp(err).Error
	errorMsg := detail.Msg
	if statusCode >= 500 {
		errorMsg = "internal server error"
		if statusCode == http.StatusServiceUnavailable {
			errorMsg = detail.Msg
		}
		util.Error().
			Err(err).
			Str("request_id", requestID).
			Msg("internal error with detailed info")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error":      errorMsg,
		"code":       detail.Code,
		"request_id": requestID,
	})
}

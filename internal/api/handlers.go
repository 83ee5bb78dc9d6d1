package api

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitekb-crawler/internal/app"
	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
	"github.com/JakeFAU/sitekb-crawler/internal/diagnostics"
)

type previewResponse struct {
	RunID       string                `json:"run_id"`
	Items       []crawler.PreviewItem `json:"items"`
	Diagnostics diagnostics.Snapshot  `json:"diagnostics"`
}

func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	var body crawlBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := s.seedRequest(r, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, snap, err := s.svc.Preview(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []crawler.PreviewItem{}
	}
	writeJSON(w, http.StatusOK, previewResponse{RunID: snap.RunID, Items: items, Diagnostics: snap})
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	var body crawlBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	format, err := formatFor(r, body.Format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := s.seedRequest(r, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.svc.Generate(r.Context(), req, format)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeBundle(w, out)
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	var body downloadBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	format, err := formatFor(r, body.Format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	picks := body.selections()
	if len(picks) == 0 {
		writeError(w, http.StatusBadRequest, "no pages selected")
		return
	}
	req := body.apply(s.opts.Defaults)
	req.SeedURL = body.URL
	targets := []string{body.URL}
	for _, p := range picks {
		targets = append(targets, p.URL)
	}
	if err := s.checkTargets(r, targets); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.svc.Download(r.Context(), req, picks, format)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeBundle(w, out)
}

func (s *Server) bulk(w http.ResponseWriter, r *http.Request) {
	var body bulkBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	format, err := formatFor(r, body.Format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(body.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "at least one url is required")
		return
	}
	if err := s.checkTargets(r, body.URLs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req := body.Options.apply(s.opts.Defaults)
	out, err := s.svc.Bulk(r.Context(), req, body.URLs, format)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeBundle(w, out)
}

// importDocuments accepts multipart uploads in the "files" field and
// returns them as a bundle. The layout comes from the mode or format query
// parameter, or a mode form field.
func (s *Server) importDocuments(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload: "+err.Error())
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			s.logger.Debug("failed to remove upload temp files", zap.Error(err))
		}
	}()

	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = r.FormValue("mode")
	}
	format, err := formatFor(r, mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	uploads, err := readUploads(r.MultipartForm.File["files"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(uploads) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}
	out, err := s.svc.Import(r.Context(), uploads, format)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeBundle(w, out)
}

func (s *Server) diagnostics(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.svc.Diagnostics()
	if !ok {
		writeError(w, http.StatusNotFound, "no runs yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) seedRequest(r *http.Request, body crawlBody) (crawler.CrawlRequest, error) {
	if err := s.checkTarget(r.Context(), body.URL); err != nil {
		return crawler.CrawlRequest{}, err
	}
	req := body.apply(s.opts.Defaults)
	req.SeedURL = body.URL
	return req, nil
}

func (s *Server) checkTargets(r *http.Request, urls []string) error {
	for _, raw := range urls {
		if raw == "" {
			continue
		}
		if err := s.checkTarget(r.Context(), raw); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) writeBundle(w http.ResponseWriter, out app.Output) {
	h := w.Header()
	h.Set("Content-Type", out.Bundle.ContentType)
	h.Set("Content-Disposition", `attachment; filename="`+out.Bundle.Filename+`"`)
	h.Set("Content-Length", strconv.Itoa(len(out.Bundle.Data)))
	if out.RunID != "" {
		h.Set("X-Run-ID", out.RunID)
	}
	h.Set("X-Pages-Count", strconv.Itoa(out.PagesCount))
	if out.Diagnostics.TimedOut {
		h.Set("X-Crawl-Timed-Out", "true")
	}
	if out.StoredURI != "" {
		h.Set("X-Bundle-URI", out.StoredURI)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out.Bundle.Data); err != nil {
		s.logger.Warn("bundle write failed", zap.String("run_id", out.RunID), zap.Error(err))
	}
}

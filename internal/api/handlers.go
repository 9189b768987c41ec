package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/fieldkit/internal/connectivity"
	"github.com/roach88/fieldkit/internal/ir"
)

type formView struct {
	Schema      *ir.DocTypeSchema `json:"schema"`
	Fingerprint string            `json:"fingerprint"`
}

type downloadRequest struct {
	Names []string `json:"names"`
}

type downloadResult struct {
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Error       string `json:"error,omitempty"`
}

type submitRequest struct {
	FormName string         `json:"form_name"`
	Data     map[string]any `json:"data"`
}

type editRequest struct {
	Data map[string]any `json:"data"`
}

type statusRequest struct {
	Status ir.SubmissionStatus `json:"status"`
	Reason string              `json:"reason,omitempty"`
}

type draftView struct {
	State string       `json:"state"`
	Data  ir.DraftData `json:"data"`
}

type connectivityView struct {
	State   connectivity.State `json:"state"`
	Changed *bool              `json:"changed,omitempty"`
}

func (s *Server) listForms(w http.ResponseWriter, r *http.Request) {
	names, err := s.client.Schemas().ListCachedNames(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"forms": names})
}

func (s *Server) remoteForms(w http.ResponseWriter, r *http.Request) {
	names, err := s.client.RemoteForms(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"forms": names})
}

func (s *Server) downloadForms(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if !s.decode(w, r, &req) {
		return
	}
	results, err := s.client.DownloadForms(r.Context(), req.Names)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]downloadResult, len(results))
	for i, res := range results {
		out[i] = downloadResult{Name: res.Name, Fingerprint: res.Fingerprint}
		if res.Err != nil {
			out[i].Error = res.Err.Error()
		}
	}
	writeJSON(w, http.StatusOK, map[string][]downloadResult{"results": out})
}

func (s *Server) openForm(w http.ResponseWriter, r *http.Request) {
	name, ok := s.pathParam(w, r, "name")
	if !ok {
		return
	}
	schema, err := s.client.OpenForm(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if schema == nil {
		s.writeError(w, r, ir.Errorf(ir.ErrCodeNotFound, "api.open_form", name, "form is not available"))
		return
	}
	writeJSON(w, http.StatusOK, formView{Schema: schema, Fingerprint: schema.Fingerprint()})
}

func (s *Server) refreshForm(w http.ResponseWriter, r *http.Request) {
	name, ok := s.pathParam(w, r, "name")
	if !ok {
		return
	}
	schema, err := s.client.RefreshForm(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, formView{Schema: schema, Fingerprint: schema.Fingerprint()})
}

func (s *Server) evictForm(w http.ResponseWriter, r *http.Request) {
	name, ok := s.pathParam(w, r, "name")
	if !ok {
		return
	}
	if err := s.client.Schemas().Evict(r.Context(), name); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listQueue(w http.ResponseWriter, r *http.Request) {
	items, err := s.client.Queue().Get(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]ir.SubmissionItem{"items": items})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.FormName == "" {
		s.writeError(w, r, ir.Errorf(ir.ErrCodeInvalidItem, "api.submit", "", "form_name is required"))
		return
	}
	item, err := s.client.Submit(r.Context(), req.FormName, req.Data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) clearQueue(w http.ResponseWriter, r *http.Request) {
	if err := s.client.Queue().Clear(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) drift(w http.ResponseWriter, r *http.Request) {
	report, err := s.client.DriftReport(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drift": report})
}

func (s *Server) replaceAt(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, codeBadRequest, "index must be an integer")
		return
	}
	var item ir.SubmissionItem
	if !s.decode(w, r, &item) {
		return
	}
	if err := s.client.Queue().ReplaceAt(r.Context(), index, item); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) editItem(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathParam(w, r, "id")
	if !ok {
		return
	}
	var req editRequest
	if !s.decode(w, r, &req) {
		return
	}
	item, err := s.client.Queue().Edit(r.Context(), id, req.Data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) setStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathParam(w, r, "id")
	if !ok {
		return
	}
	var req statusRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !req.Status.Valid() {
		writeProblem(w, http.StatusBadRequest, codeBadRequest, "unknown status "+strconv.Quote(string(req.Status)))
		return
	}
	item, err := s.client.Queue().SetStatus(r.Context(), id, req.Status, req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathParam(w, r, "id")
	if !ok {
		return
	}
	if err := s.client.Queue().Remove(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) restoreDraft(w http.ResponseWriter, r *http.Request) {
	res, err := s.client.Draft().Restore(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draftView{State: res.State.String(), Data: res.Value})
}

func (s *Server) saveDraft(w http.ResponseWriter, r *http.Request) {
	var data ir.DraftData
	if !s.decode(w, r, &data) {
		return
	}
	if err := s.client.Draft().Save(r.Context(), data); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.client.Draft().Clear(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getConnectivity(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, connectivityView{State: s.client.Signal().Current()})
}

func (s *Server) setConnectivity(w http.ResponseWriter, r *http.Request) {
	var req connectivityView
	if !s.decode(w, r, &req) {
		return
	}
	changed := s.client.Signal().Set(req.State)
	if changed {
		s.logger.Info("connectivity set", "state", req.State)
	}
	writeJSON(w, http.StatusOK, connectivityView{State: req.State, Changed: &changed})
}

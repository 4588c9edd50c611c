package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/courier/internal/store"
	"github.com/dmitrymomot/courier/pkg/mailer"
)

func (s *Server) listTenants(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"tenants": nonNil(s.service.Registry().ListTenants())})
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant":    tenant,
		"templates": nonNil(s.service.Registry().ListTypes(tenant)),
	})
}

func (s *Server) getTemplate(w http.ResponseWriter, r *http.Request) {
	tenant, typ := chi.URLParam(r, "tenant"), chi.URLParam(r, "type")
	tpl, ok := s.service.Registry().TryGet(tenant, typ)
	if !ok {
		writeError(w, http.StatusNotFound, mailer.NewTemplateNotFound(tenant, typ).Message)
		return
	}
	writeJSON(w, http.StatusOK, newTemplateResponse(tenant, typ, tpl))
}

func (s *Server) putTemplate(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, errStoreDisabled.Error())
		return
	}
	tenant, typ := chi.URLParam(r, "tenant"), chi.URLParam(r, "type")

	var req templateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	isHTML := true
	if req.IsHTML != nil {
		isHTML = *req.IsHTML
	}
	rec, err := s.store.Upsert(r.Context(), store.Record{
		Tenant:   tenant,
		Type:     typ,
		Subject:  req.Subject,
		Body:     req.Body,
		IsHTML:   isHTML,
		Priority: req.Priority,
	})
	if err != nil {
		s.logger.ErrorContext(r.Context(), "failed to store template",
			slog.String("template", typ),
			slog.String("error", err.Error()),
		)
		writeError(w, statusForError(err), err.Error())
		return
	}

	tpl := rec.Template()
	if err := s.service.Registry().Register(tenant, typ, tpl); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newTemplateResponse(tenant, typ, tpl))
}

func (s *Server) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	tenant, typ := chi.URLParam(r, "tenant"), chi.URLParam(r, "type")

	stored := false
	if s.store != nil {
		err := s.store.Delete(r.Context(), tenant, typ)
		switch {
		case err == nil:
			stored = true
		case !errors.Is(err, store.ErrNotFound):
			writeError(w, statusForError(err), err.Error())
			return
		}
	}

	if !s.service.Registry().Remove(tenant, typ) && !stored {
		writeError(w, http.StatusNotFound, mailer.NewTemplateNotFound(tenant, typ).Message)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sendTemplate(w http.ResponseWriter, r *http.Request) {
	tenant, typ := chi.URLParam(r, "tenant"), chi.URLParam(r, "type")

	var req sendTemplateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts, err := s.toSendOptions(r.Context(), req.Options)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeResult(w, s.service.SendTemplate(r.Context(), tenant, typ, req.To, req.model(), opts))
}

func (s *Server) previewTemplate(w http.ResponseWriter, r *http.Request) {
	tenant, typ := chi.URLParam(r, "tenant"), chi.URLParam(r, "type")

	var req sendTemplateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	opts, err := s.toSendOptions(r.Context(), req.Options)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	msg, err := s.service.Preview(tenant, typ, req.To, req.model(), opts)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newPreviewResponse(msg))
}

func (s *Server) sendRaw(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")

	var req rawMessageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	msg, err := s.toMessage(r.Context(), req)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeResult(w, s.service.SendRaw(r.Context(), tenant, msg))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

package httpapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/R3E-Network/applyflow/internal/applications"
	"github.com/R3E-Network/applyflow/internal/auth"
	"github.com/R3E-Network/applyflow/internal/errors"
	"github.com/R3E-Network/applyflow/internal/httputil"
)

type applicationResponse struct {
	Application *applications.Application `json:"application"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	cred, ok := s.credential(w, r)
	if !ok {
		return
	}

	query, err := applications.ParseListQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := applications.ListApplications(r.Context(), cred.Handle, cred.User.ID, query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	cred, ok := s.credential(w, r)
	if !ok {
		return
	}

	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	input, err := applications.DecodeNew(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	app, err := applications.CreateApplication(r.Context(), cred.Handle, cred.User.ID, input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, applicationResponse{Application: app})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	cred, ok := s.credential(w, r)
	if !ok {
		return
	}
	id, ok := applicationID(w, r)
	if !ok {
		return
	}

	app, err := applications.GetApplication(r.Context(), cred.Handle, cred.User.ID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, applicationResponse{Application: app})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	cred, ok := s.credential(w, r)
	if !ok {
		return
	}
	id, ok := applicationID(w, r)
	if !ok {
		return
	}

	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	patch, err := applications.DecodePatch(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	app, err := applications.UpdateApplication(r.Context(), cred.Handle, cred.User.ID, id, patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, applicationResponse{Application: app})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	cred, ok := s.credential(w, r)
	if !ok {
		return
	}
	id, ok := applicationID(w, r)
	if !ok {
		return
	}

	app, err := applications.DeleteApplication(r.Context(), cred.Handle, cred.User.ID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, applicationResponse{Application: app})
}

func (s *Server) credential(w http.ResponseWriter, r *http.Request) (*auth.Credential, bool) {
	cred, ok := auth.FromContext(r.Context())
	if !ok {
		httputil.WriteServiceError(w, errors.Unauthorized(""))
		return nil, false
	}
	return cred, true
}

// applicationID returns the canonical form of the {id} path variable. Ids
// that are not UUIDs cannot name a row, so they are reported as not found
// without asking the store.
func applicationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, applications.ErrNotFound)
		return "", false
	}
	return id.String(), true
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := httputil.ReadBody(w, r, s.maxBodyBytes)
	if err != nil {
		httputil.WriteServiceError(w, errors.Validation("", "Invalid request body"))
		return nil, false
	}
	return body, true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil || serviceErr.HTTPStatus >= http.StatusInternalServerError {
		s.logger.WithContext(r.Context()).WithError(err).Error("Request failed")
	}
	httputil.WriteServiceError(w, err)
}

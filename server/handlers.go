package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Aquaveo/xmstool-runner/mesh"
	"github.com/Aquaveo/xmstool-runner/tool"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "tools": s.registry.Len()})
}

// handleListTools returns the catalog, filtered by the q search terms.
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	seq := s.registry.All()
	if q := r.URL.Query().Get("q"); q != "" {
		seq = s.registry.Search(q)
	}
	tools := slices.Collect(seq)
	if tools == nil {
		tools = []tool.Descriptor{}
	}
	writeJSON(w, http.StatusOK, tools)
}

func (s *Server) handleGetTool(w http.ResponseWriter, r *http.Request) {
	d, err := s.registry.Find(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, string(tool.KindNotFound), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type sessionResponse struct {
	ID       string        `json:"id"`
	Grids    []gridSummary `json:"grids"`
	Datasets []dataSummary `json:"datasets"`
}

type gridSummary struct {
	UUID    string       `json:"uuid"`
	Name    string       `json:"name"`
	Points  int          `json:"points"`
	Cells   int          `json:"cells"`
	Extents mesh.Extents `json:"extents"`
	WKT     string       `json:"wkt,omitempty"`
}

type dataSummary struct {
	UUID     string `json:"uuid"`
	Name     string `json:"name"`
	GridUUID string `json:"grid_uuid"`
	Steps    int    `json:"steps"`
}

func summarize(id string, p *mesh.Project) sessionResponse {
	resp := sessionResponse{ID: id, Grids: []gridSummary{}, Datasets: []dataSummary{}}
	for _, g := range p.Grids() {
		resp.Grids = append(resp.Grids, gridSummary{
			UUID:    g.UUID,
			Name:    g.Name,
			Points:  len(g.Points),
			Cells:   len(g.Cells),
			Extents: g.Extents(),
			WKT:     g.WKT,
		})
	}
	for _, d := range p.Datasets() {
		resp.Datasets = append(resp.Datasets, dataSummary{UUID: d.UUID, Name: d.Name, GridUUID: d.GridUUID, Steps: len(d.Times)})
	}
	return resp
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	sess := &session{id: s.newID(), project: s.newWorkspace()}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	s.logger.Info("session created", "session", sess.id)
	writeJSON(w, http.StatusCreated, summarize(sess.id, sess.project))
}

func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*session, bool) {
	sid := chi.URLParam(r, "sid")
	s.mu.RLock()
	sess, ok := s.sessions[sid]
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, string(tool.KindNotFound), fmt.Sprintf("session %q not found", sid))
	}
	return sess, ok
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if !sess.busy.TryLock() {
		writeError(w, http.StatusConflict, "busy", "a tool is running in this session")
		return
	}
	defer sess.busy.Unlock()
	writeJSON(w, http.StatusOK, summarize(sess.id, sess.project))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if !sess.busy.TryLock() {
		writeError(w, http.StatusConflict, "busy", "a tool is running in this session")
		return
	}
	defer sess.busy.Unlock()
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

type runRequest struct {
	Params map[string]any `json:"params"`
}

// rawValues renders JSON scalars as the text a form field would hold.
// null leaves the parameter unset.
func rawValues(params map[string]any) (map[string]string, error) {
	raw := make(map[string]string, len(params))
	for name, v := range params {
		switch v := v.(type) {
		case nil:
		case string:
			raw[name] = v
		case json.Number:
			raw[name] = v.String()
		case bool:
			raw[name] = strconv.FormatBool(v)
		default:
			return nil, fmt.Errorf("parameter %q: expected a string, number or boolean", name)
		}
	}
	return raw, nil
}

// decodeRunRequest treats an empty body as a run without parameters.
func decodeRunRequest(r *http.Request) (runRequest, error) {
	var req runRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	decoder.UseNumber()
	if err := decoder.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return runRequest{}, err
	}
	return req, nil
}

// handleRunTool executes one tool against the session workspace. A rejected
// parameter set answers 422; any other outcome, failed or not, answers 200.
func (s *Server) handleRunTool(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	d, err := s.registry.Find(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, string(tool.KindNotFound), err.Error())
		return
	}

	req, err := decodeRunRequest(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body", err.Error())
		return
	}
	raw, err := rawValues(req.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	if !sess.busy.TryLock() {
		writeError(w, http.StatusConflict, "busy", "a tool is running in this session")
		return
	}
	defer sess.busy.Unlock()

	outcome := s.dispatcher.Execute(r.Context(), d, raw, sess.project)
	status := http.StatusOK
	if outcome.Rejected() {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, outcome)
}

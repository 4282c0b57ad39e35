package api

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/rmax-ai/facetgraph/pkg/errors"
	"github.com/rmax-ai/facetgraph/pkg/graph"
	"github.com/rmax-ai/facetgraph/pkg/reports"
)

func (s *Server) handleBuildGraph(w http.ResponseWriter, r *http.Request) {
	var req BuildGraphRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engine.BuildGraph(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleTrimGraph(w http.ResponseWriter, r *http.Request) {
	var req TrimGraphRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.engine.TrimGraph(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, GraphResponse{SessionID: req.SessionID, Graph: v})
}

// graphType reads the graph type query parameter, defaulting to detail.
func graphType(r *http.Request, param string) (graph.GraphType, error) {
	t := r.URL.Query().Get(param)
	if t == "" {
		return graph.Detail, nil
	}
	return graph.ParseGraphType(t)
}

func (s *Server) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	t, err := graphType(r, "type")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.engine.GetCachedGraph(r.Context(), sessionID, t)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, GraphResponse{SessionID: sessionID, Graph: v})
}

// handleReports streams a CSV export of the session's cached graph or table.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	reportType := reports.ReportType(r.URL.Query().Get("type"))
	if reportType == "" {
		s.writeError(w, r, apperrors.Validation("MISSING_TYPE", "report type is required"))
		return
	}
	gen, err := reports.NewReportGenerator(reportType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := graphType(r, "graph")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	snap, err := s.engine.Snapshot(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	reader, err := gen.Generate(r.Context(), reports.Source{View: snap.View(t), Table: snap.Global.Table})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	filename := fmt.Sprintf("%s_%s_%d.csv", sessionID, reportType, time.Now().Unix())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("failed_to_stream_report",
			zap.String("trace_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.GetHistory(r.Context(), chi.URLParam(r, "studyID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, entries)
}

func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteHistory(r.Context(), chi.URLParam(r, "studyID"), chi.URLParam(r, "entryID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var req CommentRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.engine.AddComment(r.Context(), chi.URLParam(r, "studyID"), chi.URLParam(r, "entryID"), req.Author, req.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusCreated, c)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req RestoreRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.engine.RestoreEntry(r.Context(), chi.URLParam(r, "studyID"), chi.URLParam(r, "entryID"), req.SessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, GraphResponse{SessionID: req.SessionID, Graph: v})
}

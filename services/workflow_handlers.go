package services

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/support-agent/workflow"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type questionRequest struct {
	Question string `json:"question"`
}

func (s *Server) supportWorkflow(w http.ResponseWriter, r *http.Request) {
	step := workflow.StepIdentify
	if raw := r.URL.Query().Get("support_workflow_step"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "support_workflow_step must be an integer")
			return
		}
		step = workflow.Step(n)
	}

	var req questionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeStatusError(w, r, err)
		return
	}

	sessionID := s.sessionIDFrom(r)
	result, err := s.engine.Run(r.Context(), sessionID, step, req.Question)
	if err != nil {
		writeStatusError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeStatusError(w, r, err)
		return
	}

	sessionID := s.sessionIDFrom(r)
	answer, err := s.engine.Ask(r.Context(), sessionID, req.Question)
	if err != nil {
		writeStatusError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer, "session_id": sessionID})
}

func (s *Server) refreshSessionID(w http.ResponseWriter, r *http.Request) {
	sessionID := s.newSessionID()
	logger.Info("Generated new session id", zap.String("session_id", sessionID))
	writeJSON(w, http.StatusOK, map[string]string{"session_id": sessionID})
}

func (s *Server) clearSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := requiredSessionID(r)
	if err != nil {
		writeStatusError(w, r, err)
		return
	}
	if err := s.sessions.ClearHistory(r.Context(), sessionID); err != nil {
		writeStatusError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Session cleared"})
}

func (s *Server) sessionHistory(w http.ResponseWriter, r *http.Request) {
	sessionID, err := requiredSessionID(r)
	if err != nil {
		writeStatusError(w, r, err)
		return
	}
	conv, err := s.sessions.Snapshot(r.Context(), sessionID)
	if err != nil {
		writeStatusError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv.Messages)
}

func (s *Server) countSessionIDs(w http.ResponseWriter, r *http.Request) {
	ids, err := s.sessions.List(r.Context())
	if err != nil {
		writeStatusError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": len(ids)})
}

func (s *Server) listSessionIDs(w http.ResponseWriter, r *http.Request) {
	ids, err := s.sessions.List(r.Context())
	if err != nil {
		writeStatusError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"session_ids": ids})
}

// sessionIDFrom returns the caller's session id or a fresh one.
func (s *Server) sessionIDFrom(r *http.Request) string {
	if id := strings.TrimSpace(r.URL.Query().Get("session_id")); id != "" {
		return id
	}
	id := s.newSessionID()
	logger.Info("No session id supplied, generated one", zap.String("session_id", id))
	return id
}

func requiredSessionID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if id == "" {
		return "", status.Error(codes.InvalidArgument, "session_id is required")
	}
	return id, nil
}

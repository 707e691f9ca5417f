package services

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/support-agent/tickets"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (s *Server) createTicket(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "error reading request body")
		return
	}
	ticket, err := tickets.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "ticket must be a JSON object")
		return
	}

	id, err := s.tickets.Save(ticket)
	if err != nil {
		writeStatusError(w, r, err)
		return
	}
	s.refreshCatalog()

	logger.Info("Ticket created", zap.String("ticket_id", id))
	writeJSON(w, http.StatusOK, map[string]string{
		"message":   "Ticket created and memory refreshed",
		"ticket_id": id,
	})
}

func (s *Server) listTickets(w http.ResponseWriter, r *http.Request) {
	list, err := s.tickets.ListRecent()
	if err != nil {
		writeStatusError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := s.tickets.Get(r.PathValue("id"))
	if err != nil {
		writeStatusError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (s *Server) deleteTicket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.tickets.Delete(id); err != nil {
		writeStatusError(w, r, err)
		return
	}
	s.refreshCatalog()

	logger.Info("Ticket deleted", zap.String("ticket_id", id))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Ticket deleted and memory refreshed"})
}

// ticketFile serves the raw file behind the "path" field of the ticket listing.
func (s *Server) ticketFile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("file")
	id, ok := strings.CutSuffix(name, ".json")
	if !ok || tickets.ValidateID(id) != nil {
		writeError(w, http.StatusNotFound, "ticket file not found")
		return
	}
	if _, err := s.tickets.Get(id); err != nil {
		writeStatusError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	http.ServeFile(w, r, filepath.Join(s.tickets.Dir(), name))
}

func (s *Server) importHistoricalTickets(w http.ResponseWriter, r *http.Request) {
	filename := strings.TrimSpace(r.URL.Query().Get("csv_filename"))
	if filename == "" {
		writeStatusError(w, r, status.Error(codes.InvalidArgument, "csv_filename is required"))
		return
	}

	summary, err := s.importer.ImportFile(r.Context(), filename)
	if err != nil {
		writeStatusError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// refreshCatalog rebuilds the digest after a write. A failure leaves the previous
// digest in place until the directory watcher or the next write succeeds.
func (s *Server) refreshCatalog() {
	if err := s.catalog.Refresh(); err != nil {
		logger.Error("Failed to refresh ticket catalog", zap.Error(err))
	}
}

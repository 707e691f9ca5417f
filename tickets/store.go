package tickets

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const filesRoute = "ticket_files/"

// Store keeps one <ticketID>.json file per ticket in a directory.
// Concurrent writers to the same ticket are last-write-wins.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating tickets dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// ValidateID rejects ids that cannot be used as a file name inside the store.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return status.Error(codes.InvalidArgument, "ticket id is required")
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return status.Errorf(codes.InvalidArgument, "invalid ticket id %q", id)
	}
	return nil
}

// Save writes the ticket under its id and returns the id.
func (s *Store) Save(t Ticket) (string, error) {
	id := t.ID()
	if id == "" {
		return "", status.Error(codes.InvalidArgument, "ticketID is required")
	}
	if err := ValidateID(id); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]json.RawMessage(t)); err != nil {
		return "", status.Errorf(codes.InvalidArgument, "invalid ticket: %v", err)
	}

	if err := os.WriteFile(s.path(id), buf.Bytes(), 0o644); err != nil {
		logger.Error("Failed to write ticket", zap.String("ticket_id", id), zap.Error(err))
		return "", status.Error(codes.Internal, "failed to write ticket")
	}
	return id, nil
}

func (s *Store) Get(id string) (Ticket, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, status.Errorf(codes.NotFound, "ticket %s not found", id)
	}
	if err != nil {
		logger.Error("Failed to read ticket", zap.String("ticket_id", id), zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to read ticket")
	}

	t, err := Parse(data)
	if err != nil {
		return nil, status.Errorf(codes.DataLoss, "ticket %s is not valid JSON", id)
	}
	return t, nil
}

func (s *Store) Delete(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	err := os.Remove(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return status.Errorf(codes.NotFound, "ticket %s not found", id)
	}
	if err != nil {
		logger.Error("Failed to delete ticket", zap.String("ticket_id", id), zap.Error(err))
		return status.Error(codes.Internal, "failed to delete ticket")
	}
	return nil
}

// List returns every readable ticket sorted by id. Unparseable files are skipped.
func (s *Store) List() ([]Ticket, error) {
	files, err := s.files()
	if err != nil {
		return nil, err
	}

	out := make([]Ticket, 0, len(files))
	for _, f := range files {
		if t, ok := s.read(f.name); ok {
			out = append(out, t)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

// ListRecent returns tickets newest first, each carrying a "path" field that
// points at the served file.
func (s *Store) ListRecent() ([]Ticket, error) {
	files, err := s.files()
	if err != nil {
		return nil, err
	}

	sort.SliceStable(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })

	out := make([]Ticket, 0, len(files))
	for _, f := range files {
		t, ok := s.read(f.name)
		if !ok {
			continue
		}
		path, _ := json.Marshal(filesRoute + f.name)
		t["path"] = path
		out = append(out, t)
	}
	return out, nil
}

type ticketFile struct {
	name    string
	modTime time.Time
}

func (s *Store) files() ([]ticketFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		logger.Error("Failed to list tickets", zap.String("dir", s.dir), zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to list tickets")
	}

	var files []ticketFile
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, ticketFile{name: e.Name(), modTime: info.ModTime()})
	}
	return files, nil
}

func (s *Store) read(name string) (Ticket, bool) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		logger.Error("Failed to read ticket file", zap.String("file", name), zap.Error(err))
		return nil, false
	}

	t, err := Parse(data)
	if err != nil {
		logger.Error("Skipping malformed ticket file", zap.String("file", name), zap.Error(err))
		return nil, false
	}
	return t, true
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

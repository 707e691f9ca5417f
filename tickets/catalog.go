package tickets

import (
	"strings"
	"sync"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"go.uber.org/zap"
)

// Catalog caches all tickets and the digest that seeds every session's history.
// The version increases whenever the digest changes.
type Catalog struct {
	store *Store

	mu      sync.RWMutex
	tickets map[string]Ticket
	digest  string
	version uint64
}

func NewCatalog(store *Store) *Catalog {
	return &Catalog{store: store, tickets: map[string]Ticket{}}
}

// Refresh reloads every ticket from disk.
func (c *Catalog) Refresh() error {
	all, err := c.store.List()
	if err != nil {
		return err
	}

	byID := make(map[string]Ticket, len(all))
	lines := make([]string, 0, len(all))
	for _, t := range all {
		line, err := t.Encode()
		if err != nil {
			logger.Error("Failed to encode ticket", zap.String("ticket_id", t.ID()), zap.Error(err))
			continue
		}
		byID[t.ID()] = t
		lines = append(lines, string(line))
	}
	digest := strings.Join(lines, "\n")

	c.mu.Lock()
	defer c.mu.Unlock()

	c.tickets = byID
	if digest != c.digest || c.version == 0 {
		c.digest = digest
		c.version++
		logger.Info("Ticket catalog refreshed", zap.Int("tickets", len(byID)), zap.Uint64("version", c.version))
	}
	return nil
}

func (c *Catalog) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Digest returns one JSON line per ticket, sorted by ticket id.
func (c *Catalog) Digest() (string, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.digest, c.version
}

func (c *Catalog) Get(id string) (Ticket, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tickets[id]
	return t, ok
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tickets)
}

package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Abrham-amplitude/solana-ticket/internal/keys"
	"github.com/Abrham-amplitude/solana-ticket/internal/models"
)

// Store is the ticket registry. The chain stays the source of truth; the
// registry indexes tickets, keeps metadata, and retains escrow keys.
// Lookups of missing records return errors wrapping ErrNotFound.
type Store interface {
	PutTicketKey(ctx context.Context, address string, k keys.Keypair) error
	TicketKey(ctx context.Context, address string) (keys.Keypair, error)
	DeleteTicketKey(ctx context.Context, address string) error

	SaveTicket(ctx context.Context, t *models.Ticket) error
	MarkTicketUsed(ctx context.Context, address, signature string, at time.Time) error
	Ticket(ctx context.Context, address string) (*models.Ticket, error)
	ListTickets(ctx context.Context, f TicketFilter) ([]models.Ticket, error)

	SaveMetadata(ctx context.Context, m *models.TicketMetadata) error
	Metadata(ctx context.Context, mint string) (*models.TicketMetadata, error)

	Ping(ctx context.Context) error
}

type TicketFilter struct {
	Kind   models.TicketKind
	Owner  string
	Status models.TicketStatus
	Limit  int
}

func (f TicketFilter) match(t *models.Ticket) bool {
	if f.Kind != "" && t.Kind != f.Kind {
		return false
	}
	if f.Owner != "" && t.Owner != f.Owner {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	return true
}

// MemoryStore keeps the registry in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	keys     map[string]string
	tickets  map[string]models.Ticket
	metadata map[string]models.TicketMetadata
	nextID   uint
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys:     make(map[string]string),
		tickets:  make(map[string]models.Ticket),
		metadata: make(map[string]models.TicketMetadata),
	}
}

func (s *MemoryStore) PutTicketKey(ctx context.Context, address string, k keys.Keypair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[address] = keys.Export(k, keys.Hex)
	return nil
}

func (s *MemoryStore) TicketKey(ctx context.Context, address string) (keys.Keypair, error) {
	s.mu.RLock()
	secret, ok := s.keys[address]
	s.mu.RUnlock()
	if !ok {
		return keys.Keypair{}, fmt.Errorf("%w: no key for %s", ErrNotFound, address)
	}
	return keys.Import(secret, keys.Hex)
}

func (s *MemoryStore) DeleteTicketKey(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, address)
	return nil
}

func (s *MemoryStore) SaveTicket(ctx context.Context, t *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if prev, ok := s.tickets[t.Address]; ok {
		t.ID = prev.ID
		t.CreatedAt = prev.CreatedAt
	} else {
		s.nextID++
		t.ID = s.nextID
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	s.tickets[t.Address] = *t
	return nil
}

func (s *MemoryStore) MarkTicketUsed(ctx context.Context, address, signature string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[address]
	if !ok {
		return fmt.Errorf("%w: ticket %s", ErrNotFound, address)
	}
	t.Status = models.StatusUsed
	if signature != "" {
		t.UseSignature = signature
	}
	t.UsedAt = &at
	t.UpdatedAt = time.Now()
	s.tickets[address] = t
	return nil
}

func (s *MemoryStore) Ticket(ctx context.Context, address string) (*models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[address]
	if !ok {
		return nil, fmt.Errorf("%w: ticket %s", ErrNotFound, address)
	}
	return &t, nil
}

// ListTickets returns matches newest first.
func (s *MemoryStore) ListTickets(ctx context.Context, f TicketFilter) ([]models.Ticket, error) {
	s.mu.RLock()
	out := make([]models.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		if f.match(&t) {
			out = append(out, t)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) SaveMetadata(ctx context.Context, m *models.TicketMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[m.Mint] = *m
	return nil
}

func (s *MemoryStore) Metadata(ctx context.Context, mint string) (*models.TicketMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metadata[mint]
	if !ok {
		return nil, fmt.Errorf("%w: metadata for %s", ErrNotFound, mint)
	}
	return &m, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

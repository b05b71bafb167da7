package store

import "sync"

// ContactStats holds per-contact send/receive counters.
type ContactStats struct {
	Address  string `json:"address"`
	Sent     int64  `json:"sent"`
	Received int64  `json:"received"`
}

// StatsRepo records message counters for the stats/telemetry collaborator.
type StatsRepo interface {
	// IncrementSent increments the outbound counter for the address.
	IncrementSent(address string) error

	// IncrementReceived increments the inbound counter for the address.
	IncrementReceived(address string) error

	// GetStats returns counters for every known address.
	GetStats() ([]ContactStats, error)
}

// InMemoryStats is the default StatsRepo when no database DSN is configured.
type InMemoryStats struct {
	mu    sync.Mutex
	stats map[string]*ContactStats
}

// NewInMemoryStats creates an empty in-memory stats repository.
func NewInMemoryStats() *InMemoryStats {
	return &InMemoryStats{stats: make(map[string]*ContactStats)}
}

func (s *InMemoryStats) get(address string) *ContactStats {
	c, ok := s.stats[address]
	if !ok {
		c = &ContactStats{Address: address}
		s.stats[address] = c
	}
	return c
}

func (s *InMemoryStats) IncrementSent(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(address).Sent++
	return nil
}

func (s *InMemoryStats) IncrementReceived(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(address).Received++
	return nil
}

func (s *InMemoryStats) GetStats() ([]ContactStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ContactStats, 0, len(s.stats))
	for _, c := range s.stats {
		out = append(out, *c)
	}
	return out, nil
}

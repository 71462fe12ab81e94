package store

import (
	"errors"
	"sort"

	"github.com/mcdev12/roomsync/go/internal/models"
)

var (
	// ErrStaleMutation is returned when a mutation references a peer with no record, usually
	// because a disconnect raced the message.
	ErrStaleMutation = errors.New("stale mutation: no record for peer")
	// ErrDuplicateRecord is returned when a record for the peer already exists.
	ErrDuplicateRecord = errors.New("duplicate record")
)

// Store maps entity id to player record. Each peer holds its own Store and mutates it only
// from replayed, totally ordered calls so every copy converges.
type Store struct {
	records map[models.PeerID]*models.PlayerRecord
}

// New creates an empty store.
func New() *Store {
	return &Store{
		records: make(map[models.PeerID]*models.PlayerRecord),
	}
}

// AddRecord creates a record with full health and zero score. It is idempotent: a second
// call for the same id leaves the existing record untouched and returns ErrDuplicateRecord.
func (s *Store) AddRecord(id models.PeerID, name string) error {
	if _, exists := s.records[id]; exists {
		return ErrDuplicateRecord
	}
	rec := models.NewPlayerRecord(id, name)
	s.records[id] = &rec
	return nil
}

// SetHealth clamps value to [0, MaxHealth] and stores it. It returns the record as applied.
func (s *Store) SetHealth(id models.PeerID, value int) (models.PlayerRecord, error) {
	rec, ok := s.records[id]
	if !ok {
		return models.PlayerRecord{}, ErrStaleMutation
	}
	rec.Health = models.ClampHealth(value)
	return *rec, nil
}

// SetScore stores the score for id. Last write wins; negative values are floored at zero.
func (s *Store) SetScore(id models.PeerID, value int) (models.PlayerRecord, error) {
	rec, ok := s.records[id]
	if !ok {
		return models.PlayerRecord{}, ErrStaleMutation
	}
	if value < 0 {
		value = 0
	}
	rec.Score = value
	return *rec, nil
}

// RemoveRecord deletes the record for id. Returns false if there was none.
func (s *Store) RemoveRecord(id models.PeerID) bool {
	if _, ok := s.records[id]; !ok {
		return false
	}
	delete(s.records, id)
	return true
}

// Get returns a copy of the record for id.
func (s *Store) Get(id models.PeerID) (models.PlayerRecord, bool) {
	rec, ok := s.records[id]
	if !ok {
		return models.PlayerRecord{}, false
	}
	return *rec, true
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.records)
}

// Records returns copies of all records ordered by id.
func (s *Store) Records() []models.PlayerRecord {
	out := make([]models.PlayerRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// Ranking returns records ordered for the scoreboard: score descending, then name, then id.
func (s *Store) Ranking() []models.PlayerRecord {
	out := s.Records()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out
}

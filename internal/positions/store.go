package positions

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

const (
	// DefaultTTL is how long a snapshot stays valid after its last flush.
	DefaultTTL = 7 * 24 * time.Hour
	// CurrentVersion is the snapshot format version. Bumping it discards
	// every existing cache.
	CurrentVersion = 1
)

// Snapshot is the persisted form of a position cache.
type Snapshot struct {
	Data      PositionMap `json:"data"`
	Timestamp int64       `json:"timestamp"`
	ExpiresAt int64       `json:"expiresAt"`
	Version   int         `json:"version"`
	Checksum  string      `json:"checksum"`
}

type Option func(*Store)

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithVersion(version int) Option {
	return func(s *Store) { s.version = version }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store is the position cache of one layout session. Its lifecycle is
// Init (load and validate), reads and writes, then Flush. A nil KV keeps the
// cache in memory only. The store never retries failed writes; callers use
// UnsyncedPositions to drive their own retry policy.
type Store struct {
	kv      KV
	key     string
	ttl     time.Duration
	version int
	now     func() time.Time
	logger  *zap.Logger

	mu          sync.Mutex
	positions   PositionMap
	initialized bool
}

func NewStore(kv KV, projectID string, opts ...Option) *Store {
	s := &Store{
		kv:        kv,
		key:       "positions:" + projectID,
		ttl:       DefaultTTL,
		version:   CurrentVersion,
		now:       time.Now,
		logger:    zap.NewNop(),
		positions: make(PositionMap),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init loads the persisted snapshot into the store. Without a KV, or when
// the KV fails, the in-memory positions are kept. The first Init adopts the
// snapshot; later ones merge it entry by entry so a snapshot left stale by a
// failed Flush cannot roll back newer local edits.
func (s *Store) Init(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	loaded, err := s.LoadCachedPositions(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		s.positions = loaded
		s.initialized = true
		return nil
	}
	for id, pos := range loaded {
		if current, ok := s.positions[id]; !ok || newerEntry(pos, current) {
			s.positions[id] = pos
		}
	}
	return nil
}

// newerEntry reports whether a should replace b: a later edit wins, and on a
// tie an unsynced entry wins over a synced one.
func newerEntry(a, b CachedPosition) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp > b.Timestamp
	}
	return !a.BackendSynced && b.BackendSynced
}

// LoadCachedPositions reads the persisted snapshot. Expired, corrupted or
// version-mismatched snapshots are discarded whole and yield an empty map.
func (s *Store) LoadCachedPositions(ctx context.Context) (PositionMap, error) {
	if s.kv == nil {
		return make(PositionMap), nil
	}
	raw, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, ErrCacheMiss) {
		return make(PositionMap), nil
	}
	if err != nil {
		return make(PositionMap), fmt.Errorf("load position cache: %w", err)
	}

	var snap Snapshot
	reason := ""
	switch {
	case json.Unmarshal(raw, &snap) != nil:
		reason = "undecodable snapshot"
	case snap.Version != s.version:
		reason = "version mismatch"
	case snap.Checksum != checksum(snap.Data):
		reason = "checksum mismatch"
	case snap.ExpiresAt < s.now().UnixMilli():
		reason = "expired"
	}
	if reason != "" {
		s.logger.Warn("discarding position cache", zap.String("key", s.key), zap.String("reason", reason))
		if err := s.kv.Delete(ctx, s.key); err != nil {
			s.logger.Warn("delete position cache", zap.String("key", s.key), zap.Error(err))
		}
		return make(PositionMap), nil
	}
	if snap.Data == nil {
		snap.Data = make(PositionMap)
	}
	return snap.Data, nil
}

// UpdateCachedPosition records a local edit. A zero timestamp is stamped
// with the current time.
func (s *Store) UpdateCachedPosition(id string, pos CachedPosition, markSynced bool) CachedPosition {
	if pos.Timestamp == 0 {
		pos.Timestamp = s.now().UnixMilli()
	}
	pos.BackendSynced = markSynced

	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[id] = pos
	return pos
}

// MarkPositionsAsSynced flags the given entries as persisted. Entries edited
// after upTo (ms) are left unsynced so a late save completion cannot confirm
// a newer edit; upTo <= 0 marks regardless of timestamp. It returns the number
// of entries marked.
func (s *Store) MarkPositionsAsSynced(ids []string, upTo int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	marked := 0
	for _, id := range ids {
		pos, ok := s.positions[id]
		if !ok || pos.BackendSynced {
			continue
		}
		if upTo > 0 && pos.Timestamp > upTo {
			continue
		}
		pos.BackendSynced = true
		s.positions[id] = pos
		marked++
	}
	return marked
}

func (s *Store) UnsyncedPositions() PositionMap {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(PositionMap)
	for id, pos := range s.positions {
		if !pos.BackendSynced {
			out[id] = pos
		}
	}
	return out
}

func (s *Store) Get(id string) (CachedPosition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[id]
	return pos, ok
}

func (s *Store) Positions() PositionMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions.clone()
}

// Replace swaps the whole cache, typically for the result of MergePositions.
func (s *Store) Replace(positions PositionMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = positions.clone()
}

func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, id)
}

// Flush persists the cache. Expiry restarts from the time of the flush.
func (s *Store) Flush(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	s.mu.Lock()
	data := s.positions.clone()
	s.mu.Unlock()

	now := s.now()
	snap := Snapshot{
		Data:      data,
		Timestamp: now.UnixMilli(),
		ExpiresAt: now.Add(s.ttl).UnixMilli(),
		Version:   s.version,
		Checksum:  checksum(data),
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode position cache: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, raw, s.ttl); err != nil {
		return fmt.Errorf("flush position cache: %w", err)
	}
	return nil
}

// Clear drops the cache and its persisted snapshot.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.positions = make(PositionMap)
	s.mu.Unlock()
	if s.kv == nil {
		return nil
	}
	if err := s.kv.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("clear position cache: %w", err)
	}
	return nil
}

func checksum(data PositionMap) string {
	if data == nil {
		data = PositionMap{}
	}
	// map keys marshal in sorted order, so the encoding is stable
	raw, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

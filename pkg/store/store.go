//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../../mocks/mock_store.go -package=mocks
package store

import (
	"MedicChat/models"
	"MedicChat/pkg/cache"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"gorm.io/gorm"
)

// Store is the append-only message log, keyed by conversation (customer id).
type Store interface {
	// Append validates and persists a message. created is false when the
	// input carried a client_request_id that was already stored for the
	// conversation; the earlier row is returned and nothing is written.
	Append(ctx context.Context, in models.MessageInput) (msg models.Message, created bool, err error)
	// ListByConversation returns the conversation in ascending created_at
	// order, ties broken by id. Unknown conversations yield an empty slice.
	ListByConversation(ctx context.Context, customerID uint) ([]models.Message, error)
}

// StorageError wraps any failure of the underlying database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

type Option func(*GormStore)

// WithCache enables the history cache. Entries live for ttl and are dropped
// on every append to the same conversation.
func WithCache(c *cache.Cache, ttl time.Duration) Option {
	return func(s *GormStore) {
		s.cache = c
		s.ttl = ttl
	}
}

// WithClock overrides the clock used for created_at.
func WithClock(now func() time.Time) Option {
	return func(s *GormStore) { s.now = now }
}

// GormStore implements Store on top of gorm (MySQL, Postgres or SQLite).
type GormStore struct {
	db    *gorm.DB
	cache *cache.Cache
	ttl   time.Duration
	now   func() time.Time

	mu          sync.Mutex
	gens        map[uint]uint64 // per conversation, bumped on append
	lastCreated time.Time
}

func New(db *gorm.DB, opts ...Option) *GormStore {
	s := &GormStore{
		db:   db,
		now:  time.Now,
		gens: make(map[uint]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AutoMigrate creates the messages table and its indexes. The customer
// table belongs to the admin application: it is only created when missing
// (local and test databases) and never altered.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Message{}); err != nil {
		return err
	}
	if db.Migrator().HasTable(&models.Customer{}) {
		return nil
	}
	return db.Migrator().CreateTable(&models.Customer{})
}

func (s *GormStore) Append(ctx context.Context, in models.MessageInput) (models.Message, bool, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return models.Message{}, false, err
	}
	msg := in.ToMessage()

	if msg.ClientRequestID != nil {
		existing, found, err := s.findByRequestID(ctx, msg.CustomerID, *msg.ClientRequestID)
		if err != nil {
			return models.Message{}, false, &StorageError{Op: "append", Err: err}
		}
		if found {
			return existing, false, nil
		}
	}

	msg.CreatedAt = s.stamp()
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		// lost a race against a retry carrying the same request id
		if msg.ClientRequestID != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, found, ferr := s.findByRequestID(ctx, msg.CustomerID, *msg.ClientRequestID)
			if ferr == nil && found {
				return existing, false, nil
			}
		}
		return models.Message{}, false, &StorageError{Op: "append", Err: err}
	}

	s.invalidate(msg.CustomerID)
	return msg, true, nil
}

func (s *GormStore) ListByConversation(ctx context.Context, customerID uint) ([]models.Message, error) {
	key := historyKey(customerID)
	if v, ok := s.cache.Get(key); ok {
		if msgs, ok := v.([]models.Message); ok {
			return append([]models.Message{}, msgs...), nil
		}
	}

	gen := s.generation(customerID)
	msgs := []models.Message{}
	err := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}

	s.fill(customerID, gen, msgs)
	return msgs, nil
}

// Count returns the number of stored messages of a conversation.
func (s *GormStore) Count(ctx context.Context, customerID uint) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Message{}).Where("customer_id = ?", customerID).Count(&n).Error; err != nil {
		return 0, &StorageError{Op: "count", Err: err}
	}
	return n, nil
}

// Ping checks that the database answers.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return &StorageError{Op: "ping", Err: err}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return &StorageError{Op: "ping", Err: err}
	}
	return nil
}

func (s *GormStore) findByRequestID(ctx context.Context, customerID uint, requestID string) (models.Message, bool, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("customer_id = ? AND client_request_id = ?", customerID, requestID).
		Limit(1).
		Find(&msgs).Error
	if err != nil {
		return models.Message{}, false, err
	}
	if len(msgs) == 0 {
		return models.Message{}, false, nil
	}
	return msgs[0], true, nil
}

// stamp returns the created_at for a new row. Millisecond precision matches
// the DATETIME(3) column; the value never goes backwards within a process.
func (s *GormStore) stamp() time.Time {
	t := s.now().UTC().Truncate(time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Before(s.lastCreated) {
		t = s.lastCreated
	}
	s.lastCreated = t
	return t
}

func (s *GormStore) generation(customerID uint) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[customerID]
}

func (s *GormStore) invalidate(customerID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[customerID]++
	s.cache.Delete(historyKey(customerID))
}

// fill caches a history read unless an append landed while it was running.
func (s *GormStore) fill(customerID uint, gen uint64, msgs []models.Message) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[customerID] != gen {
		return
	}
	s.cache.Set(historyKey(customerID), append([]models.Message{}, msgs...), s.ttl)
}

func historyKey(customerID uint) string {
	return cache.KeyFromStrings("history", strconv.FormatUint(uint64(customerID), 10))
}

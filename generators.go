package diol

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// IDGenerator generates primary keys for new rows
type IDGenerator interface {
	Generate() (interface{}, error)
}

// UUIDGenerator generates random (version 4) UUIDs in their string form
type UUIDGenerator struct{}

func (UUIDGenerator) Generate() (interface{}, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	return id.String(), nil
}

// ULIDGenerator generates lexicographically sortable ULIDs in their string
// form. IDs generated within the same millisecond are monotonic. The zero
// value is ready to use.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewULIDGenerator creates a ULIDGenerator
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (gen *ULIDGenerator) Generate() (interface{}, error) {
	gen.mu.Lock()
	defer gen.mu.Unlock()

	if gen.entropy == nil {
		gen.entropy = ulid.Monotonic(rand.Reader, 0)
	}

	id, err := ulid.New(ulid.Timestamp(time.Now()), gen.entropy)
	if err != nil {
		return nil, err
	}
	return id.String(), nil
}

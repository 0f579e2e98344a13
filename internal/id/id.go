// Package id issues calculation run identifiers. A run ID is a ULID stamped
// with the run's start time, so stores can list runs in start order by ID.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrInvalidRunID is returned for strings that were not issued by NewRunID.
var ErrInvalidRunID = errors.New("invalid run id")

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// NewRunID returns the identifier of a run started at startedAt.
// Runs started in the same millisecond still sort in start order.
func NewRunID(startedAt time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(startedAt), mono).String()
}

// StartedAt recovers the start time carried by runID, to the millisecond.
func StartedAt(runID string) (time.Time, error) {
	u, err := ulid.ParseStrict(runID)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q", ErrInvalidRunID, runID)
	}
	return ulid.Time(u.Time()).UTC(), nil
}

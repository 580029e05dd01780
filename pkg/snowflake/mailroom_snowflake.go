// Package snowflake implements a Twitter Snowflake ID generator.
//
// ID structure (64 bits): 1 sign bit, 41 bits of milliseconds since a
// custom epoch, 10 bits of shard ID, 12 bits of per-millisecond
// sequence. IDs are time-sortable and unique without coordination.
package snowflake

import (
	"errors"
	"sync"
	"time"
)

const (
	// Custom epoch: 2024-01-01 00:00:00 UTC
	epoch int64 = 1704067200000

	timestampBits = 41
	shardIDBits   = 10
	sequenceBits  = 12

	maxShardID  = (1 << shardIDBits) - 1  // 1023
	maxSequence = (1 << sequenceBits) - 1 // 4095

	timestampShift = shardIDBits + sequenceBits // 22
	shardIDShift   = sequenceBits               // 12
)

var (
	ErrInvalidShardID = errors.New("shard ID must be between 0 and 1023")
	ErrClockMovedBack = errors.New("clock moved backwards")
)

// Generator generates unique Snowflake IDs for one shard.
type Generator struct {
	mu       sync.Mutex
	shardID  int64
	sequence int64
	lastTime int64
}

// NewGenerator creates a generator for the given shard (0-1023).
func NewGenerator(shardID int64) (*Generator, error) {
	if shardID < 0 || shardID > maxShardID {
		return nil, ErrInvalidShardID
	}

	return &Generator{shardID: shardID}, nil
}

// Generate generates a new unique Snowflake ID.
func (g *Generator) Generate() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := currentTimeMillis()

	if now < g.lastTime {
		return 0, ErrClockMovedBack
	}

	if now == g.lastTime {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			// Sequence overflow, wait for next millisecond
			now = waitNextMillis(g.lastTime)
		}
	} else {
		g.sequence = 0
	}

	g.lastTime = now

	id := ((now - epoch) << timestampShift) |
		(g.shardID << shardIDShift) |
		g.sequence

	return id, nil
}

// MustGenerate generates a new ID and panics on error.
func (g *Generator) MustGenerate() int64 {
	id, err := g.Generate()
	if err != nil {
		panic(err)
	}
	return id
}

// Parse extracts components from a Snowflake ID.
func Parse(id int64) (timestamp time.Time, shardID int64, sequence int64) {
	ts := (id >> timestampShift) + epoch
	timestamp = time.UnixMilli(ts)
	shardID = (id >> shardIDShift) & maxShardID
	sequence = id & maxSequence
	return
}

func currentTimeMillis() int64 {
	return time.Now().UnixMilli()
}

func waitNextMillis(lastTime int64) int64 {
	now := currentTimeMillis()
	for now <= lastTime {
		time.Sleep(100 * time.Microsecond)
		now = currentTimeMillis()
	}
	return now
}

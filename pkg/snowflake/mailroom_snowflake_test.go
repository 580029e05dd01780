package snowflake

import (
	"sync"
	"testing"
)

func TestGeneratorUniqueness(t *testing.T) {
	gen, err := NewGenerator(1)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	seen := make(map[int64]bool)
	for i := 0; i < 10000; i++ {
		id := gen.MustGenerate()
		if seen[id] {
			t.Fatalf("duplicate ID generated: %d", id)
		}
		seen[id] = true
	}
}

func TestGeneratorMonotonic(t *testing.T) {
	gen, _ := NewGenerator(1)

	prev := gen.MustGenerate()
	for i := 0; i < 1000; i++ {
		id := gen.MustGenerate()
		if id <= prev {
			t.Fatalf("IDs not monotonic: %d after %d", id, prev)
		}
		prev = id
	}
}

func TestGeneratorConcurrent(t *testing.T) {
	gen, _ := NewGenerator(2)

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				id := gen.MustGenerate()
				mu.Lock()
				if seen[id] {
					mu.Unlock()
					t.Errorf("duplicate ID across goroutines: %d", id)
					return
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

func TestInvalidShardID(t *testing.T) {
	if _, err := NewGenerator(-1); err != ErrInvalidShardID {
		t.Errorf("expected ErrInvalidShardID for -1, got %v", err)
	}
	if _, err := NewGenerator(1024); err != ErrInvalidShardID {
		t.Errorf("expected ErrInvalidShardID for 1024, got %v", err)
	}
}

func TestParse(t *testing.T) {
	gen, _ := NewGenerator(42)
	id := gen.MustGenerate()

	_, shardID, _ := Parse(id)
	if shardID != 42 {
		t.Errorf("expected shard 42, got %d", shardID)
	}
}

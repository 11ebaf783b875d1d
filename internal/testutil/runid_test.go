package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedGenerator_InOrder(t *testing.T) {
	gen := NewFixedGenerator("run-1", "run-2")
	assert.Equal(t, "run-1", gen.Generate())
	assert.Equal(t, "run-2", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

func TestFixedGenerator_Default(t *testing.T) {
	gen := NewFixedGenerator()
	assert.Equal(t, "test-run", gen.Generate())
	assert.Equal(t, "test-run", gen.Generate())
}

func TestFixedGenerator_ThreadSafe(t *testing.T) {
	tokens := make([]string, 100)
	for i := range tokens {
		tokens[i] = "tok"
	}
	gen := NewFixedGenerator(tokens...)

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, "tok", gen.Generate())
		}()
	}
	wg.Wait()
}

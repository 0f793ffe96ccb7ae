package lockout

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIncrementAndReset(t *testing.T) {
	tr := New()

	assert.Equal(t, 0, tr.Attempts("alice"))
	assert.Equal(t, 1, tr.Increment("alice"))
	assert.Equal(t, 2, tr.Increment("alice"))
	assert.Equal(t, 2, tr.Attempts("alice"))

	assert.Equal(t, 1, tr.Increment("bob"), "counters are per username")

	tr.Reset("alice")
	assert.Equal(t, 0, tr.Attempts("alice"))
	assert.Equal(t, 1, tr.Attempts("bob"))
}

func TestConcurrentIncrements(t *testing.T) {
	tr := New()

	const workers = 32
	const perWorker = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				tr.Increment("alice")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker, tr.Attempts("alice"))
}

func TestGuardSerializesPerUsername(t *testing.T) {
	tr := New()

	var inside int
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := tr.Guard("alice")
			defer unlock()
			inside++
			n := inside
			assert.Equal(t, 1, n, "critical section must be exclusive")
			inside--
		}()
	}
	wg.Wait()
}

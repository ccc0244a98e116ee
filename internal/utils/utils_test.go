package utils

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetSortedKeys(t *testing.T) {
	years := map[int][]string{2021: nil, 2019: nil, 2020: nil}
	assert.Equal(t, []int{2019, 2020, 2021}, GetSortedKeys(years, true))
	assert.Equal(t, []int{2021, 2020, 2019}, GetSortedKeys(years, false))
}

func TestExecuteWithMutexSerialises(t *testing.T) {
	var wg sync.WaitGroup
	inside, peak := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ExecuteWithMutex(func() {
				inside++
				peak = max(peak, inside)
				time.Sleep(time.Millisecond)
				inside--
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, peak)
}

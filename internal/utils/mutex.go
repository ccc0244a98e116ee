package utils

import "sync"

var gdalMu sync.Mutex

// ExecuteWithMutex serialises fn with every other caller. GDAL dataset
// handles are not safe to open concurrently from the cgo bindings.
func ExecuteWithMutex(fn func()) {
	gdalMu.Lock()
	defer gdalMu.Unlock()
	fn()
}

// ExecuteWithMutexErr is ExecuteWithMutex for functions that fail.
func ExecuteWithMutexErr(fn func() error) error {
	var err error
	ExecuteWithMutex(func() { err = fn() })
	return err
}

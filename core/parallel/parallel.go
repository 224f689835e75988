// Package parallel provides the worker primitives used for model fitting and
// raster prediction.
package parallel

import (
	"runtime"
	"sync"
)

// Parallelize splits [0, items) into one contiguous range per CPU core and
// calls fn for each range concurrently. Raster prediction uses it over rows.
func Parallelize(items int, fn func(start, end int)) {
	if items <= 0 {
		return
	}
	workers := min(runtime.NumCPU(), items)
	chunkSize := (items + workers - 1) / workers

	var wg sync.WaitGroup
	for start := 0; start < items; start += chunkSize {
		end := min(start+chunkSize, items)
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(start, end)
		}()
	}
	wg.Wait()
}

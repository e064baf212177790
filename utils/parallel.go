package utils

import (
	"runtime"
	"sync"

	"go.viam.com/utils"
)

// ParallelFactor controls the max level of parallelization. This might be useful
// to set in tests where too much parallelism actually slows tests down in
// aggregate.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
}

// ParallelForEachRow splits the rows [0, height) into contiguous bands, one per worker, and
// calls f for every row. Each row is visited exactly once, so f may write to row-indexed
// storage without locking.
func ParallelForEachRow(height int, f func(y int)) {
	if height <= 0 {
		return
	}
	workers := ParallelFactor
	if workers > height {
		workers = height
	}
	band := height / workers
	extra := height % workers

	var wait sync.WaitGroup
	wait.Add(workers)
	start := 0
	for w := 0; w < workers; w++ {
		end := start + band
		if w < extra {
			end++
		}
		from, to := start, end
		utils.PanicCapturingGo(func() {
			defer wait.Done()
			for y := from; y < to; y++ {
				f(y)
			}
		})
		start = end
	}
	wait.Wait()
}

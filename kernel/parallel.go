package kernel

import (
	"golang.org/x/sync/errgroup"
)

// ForEachStrip partitions rows [0, m) into at most threads contiguous strips
// and runs fn on each strip concurrently. It returns the first error from
// any strip. Strips never overlap, so fn may write disjoint row ranges of a
// shared output without synchronization.
func ForEachStrip(m, threads int, fn func(r0, r1 int) error) error {
	if threads < 1 {
		threads = 1
	}
	if threads > m {
		threads = m
	}
	if threads == 1 {
		return fn(0, m)
	}

	per := (m + threads - 1) / threads
	var g errgroup.Group
	for r0 := 0; r0 < m; r0 += per {
		r0 := r0
		r1 := r0 + per
		if r1 > m {
			r1 = m
		}
		g.Go(func() error { return fn(r0, r1) })
	}
	return g.Wait()
}

package reach

import (
	"container/heap"

	"github.com/talgya/hexrules/internal/world"
)

// step is a frontier entry: a hex reached at some accumulated cost.
type step struct {
	hex  world.HexCoord
	cost float64
	hops int
}

// frontier is a min-heap of steps ordered by (cost, hops, r, q), which makes
// pop order fully deterministic.
type frontier []step

func (f frontier) Len() int { return len(f) }

func (f frontier) Less(i, j int) bool {
	a, b := f[i], f[j]
	if a.cost != b.cost {
		return a.cost < b.cost
	}
	if a.hops != b.hops {
		return a.hops < b.hops
	}
	return a.hex.Less(b.hex)
}

func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }

func (f *frontier) Push(x any) { *f = append(*f, x.(step)) }

func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	s := old[n-1]
	*f = old[:n-1]
	return s
}

func (f *frontier) push(s step) { heap.Push(f, s) }

func (f *frontier) pop() step { return heap.Pop(f).(step) }

package routing

import (
	"container/heap"

	"github.com/lnresearch/paysim/simgraph"
)

// nodeWithDist is a helper struct that couples the cost of reaching the
// destination from a node with the bookkeeping required to reconstruct and
// tie-break candidate paths.
type nodeWithDist struct {
	// node is the vertex itself.
	node simgraph.NodeIndex

	// dist is the metric cost from this node to the destination.
	dist float64

	// amountToReceive is the amount that should be received by this
	// node: the final payment amount plus the fees for subsequent hops.
	amountToReceive simgraph.MilliSatoshi

	// fee is the total fee accumulated on the path from this node to
	// the destination. Used for reporting and as a tie breaker.
	fee simgraph.MilliSatoshi

	// incomingCltv is the accumulated time lock of the path from this
	// node to the destination.
	incomingCltv uint32

	// hopCount is the number of edges between this node and the
	// destination.
	hopCount int
}

// distanceHeap is a min-distance heap used within the path finding
// algorithm to keep track of the node currently closest to the destination.
type distanceHeap struct {
	nodes []nodeWithDist

	// indices maps node indexes to their position in the heap. This lets
	// us use heap.Fix instead of keeping duplicate entries on the heap.
	indices []int32
}

// newDistanceHeap initializes a distance heap with capacity for the given
// node count.
func newDistanceHeap(numNodes int) distanceHeap {
	indices := make([]int32, numNodes)
	for i := range indices {
		indices[i] = -1
	}

	return distanceHeap{indices: indices}
}

// Len returns the number of nodes in the priority queue.
//
// NOTE: This is part of the heap.Interface implementation.
func (d *distanceHeap) Len() int { return len(d.nodes) }

// Less returns whether the item in the priority queue with index i should
// sort before the item with index j.
//
// NOTE: This is part of the heap.Interface implementation.
func (d *distanceHeap) Less(i, j int) bool {
	return d.nodes[i].dist < d.nodes[j].dist
}

// Swap swaps the nodes at the passed indices in the priority queue.
//
// NOTE: This is part of the heap.Interface implementation.
func (d *distanceHeap) Swap(i, j int) {
	d.nodes[i], d.nodes[j] = d.nodes[j], d.nodes[i]
	d.indices[d.nodes[i].node] = int32(i)
	d.indices[d.nodes[j].node] = int32(j)
}

// Push pushes the passed item onto the priority queue.
//
// NOTE: This is part of the heap.Interface implementation.
func (d *distanceHeap) Push(x interface{}) {
	n := x.(nodeWithDist)
	d.nodes = append(d.nodes, n)
	d.indices[n.node] = int32(len(d.nodes) - 1)
}

// Pop removes the highest priority item (according to Less) from the
// priority queue and returns it.
//
// NOTE: This is part of the heap.Interface implementation.
func (d *distanceHeap) Pop() interface{} {
	n := len(d.nodes)
	x := d.nodes[n-1]
	d.nodes = d.nodes[0 : n-1]
	d.indices[x.node] = -1

	return x
}

// PushOrFix adjusts the position of a node already present in the heap, or
// pushes it if absent. This avoids duplicate entries for the same node
// during relaxation.
func (d *distanceHeap) PushOrFix(dist nodeWithDist) {
	index := d.indices[dist.node]
	if index == -1 {
		heap.Push(d, dist)
		return
	}

	// Change the value at the specified index.
	d.nodes[index] = dist

	// Call heap.Fix to reorder the heap.
	heap.Fix(d, int(index))
}

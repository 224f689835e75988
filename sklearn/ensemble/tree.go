package ensemble

import (
	"math"
	"sort"
)

// Node is one node of a regression tree stored in a flat slice.
// Leaves have Left == Right == -1.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
	Gain      float64
}

// IsLeaf returns true if the node is a leaf node
func (n *Node) IsLeaf() bool {
	return n.Left < 0
}

// Tree is a fitted regression tree on gradient statistics.
type Tree struct {
	Nodes []Node
}

// Predict walks the tree for one feature vector.
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

type splitInfo struct {
	feature   int
	threshold float64
	gain      float64
}

// treeBuilder grows one tree on fixed gradients and hessians.
type treeBuilder struct {
	X          [][]float64
	gradients  []float64
	hessians   []float64
	maxDepth   int
	minLeaf    int
	lambda     float64
	minGain    float64
	importance []float64
}

func (b *treeBuilder) build(indices []int) Tree {
	var tree Tree
	b.buildNode(&tree, indices, 0)
	return tree
}

func (b *treeBuilder) buildNode(tree *Tree, indices []int, depth int) int {
	idx := len(tree.Nodes)
	tree.Nodes = append(tree.Nodes, Node{Left: -1, Right: -1, Value: b.leafValue(indices)})

	if depth >= b.maxDepth || len(indices) < 2*b.minLeaf {
		return idx
	}
	best := b.findBestSplit(indices)
	if best.gain <= b.minGain {
		return idx
	}

	var left, right []int
	for _, i := range indices {
		if b.X[i][best.feature] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.importance[best.feature] += best.gain

	tree.Nodes[idx].Feature = best.feature
	tree.Nodes[idx].Threshold = best.threshold
	tree.Nodes[idx].Gain = best.gain
	l := b.buildNode(tree, left, depth+1)
	r := b.buildNode(tree, right, depth+1)
	tree.Nodes[idx].Left = l
	tree.Nodes[idx].Right = r
	return idx
}

func (b *treeBuilder) findBestSplit(indices []int) splitInfo {
	best := splitInfo{gain: math.Inf(-1)}
	if len(indices) == 0 {
		return best
	}
	p := len(b.X[indices[0]])

	var totalGrad, totalHess float64
	for _, i := range indices {
		totalGrad += b.gradients[i]
		totalHess += b.hessians[i]
	}

	sorted := make([]int, len(indices))
	for j := 0; j < p; j++ {
		copy(sorted, indices)
		sort.Slice(sorted, func(a, c int) bool { return b.X[sorted[a]][j] < b.X[sorted[c]][j] })

		var leftGrad, leftHess float64
		for k := 0; k < len(sorted)-1; k++ {
			i := sorted[k]
			leftGrad += b.gradients[i]
			leftHess += b.hessians[i]
			leftCount := k + 1
			rightCount := len(sorted) - leftCount

			v, next := b.X[i][j], b.X[sorted[k+1]][j]
			if v == next {
				continue
			}
			if leftCount < b.minLeaf || rightCount < b.minLeaf {
				continue
			}
			gain := b.splitGain(leftGrad, leftHess, totalGrad-leftGrad, totalHess-leftHess, totalGrad, totalHess)
			if gain > best.gain {
				best = splitInfo{feature: j, threshold: (v + next) / 2, gain: gain}
			}
		}
	}
	return best
}

func (b *treeBuilder) splitGain(leftGrad, leftHess, rightGrad, rightHess, totalGrad, totalHess float64) float64 {
	score := func(g, h float64) float64 { return g * g / (h + b.lambda) }
	return 0.5 * (score(leftGrad, leftHess) + score(rightGrad, rightHess) - score(totalGrad, totalHess))
}

// leafValue is the Newton step -G/(H+lambda).
func (b *treeBuilder) leafValue(indices []int) float64 {
	var g, h float64
	for _, i := range indices {
		g += b.gradients[i]
		h += b.hessians[i]
	}
	return -g / (h + b.lambda + 1e-10)
}

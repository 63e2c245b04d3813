package contigcaller

import (
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestWeightSplitterUniformReductionSurvives(t *testing.T) {
	arena := &nodeArena{}
	ws := newWeightSplitter(arena)
	n := node(arena, 0, "ACG", "CGT", "GTA")
	n.Weights = []int{5, 5, 5}

	out := ws.split(n, [][]*KmerSupportNode{
		{{Weight: 2}}, {{Weight: 2}}, {{Weight: 2}},
	})
	expect.EQ(t, len(out), 1)
	expect.EQ(t, out[0].Weights, []int{3, 3, 3})
	expect.EQ(t, int64(out[0].ID()) != int64(n.ID()), true)
}

func TestWeightSplitterPartitionsOnUnevenDepletion(t *testing.T) {
	arena := &nodeArena{}
	ws := newWeightSplitter(arena)
	n := node(arena, 0, "ACG", "CGT", "GTA")
	n.Weights = []int{3, 3, 3}

	out := ws.split(n, [][]*KmerSupportNode{
		{{Weight: 1}}, {{Weight: 3}}, {{Weight: 1}},
	})
	expect.EQ(t, len(out), 2)
	expect.EQ(t, out[0].Len(), 1)
	expect.EQ(t, out[0].Weights, []int{2})
	expect.EQ(t, out[0].FirstStart, Pos(0))
	expect.EQ(t, out[1].Len(), 1)
	expect.EQ(t, out[1].Weights, []int{2})
	expect.EQ(t, out[1].FirstStart, Pos(2))
}

func TestWeightSplitterFullDepletionYieldsNoReplacements(t *testing.T) {
	arena := &nodeArena{}
	ws := newWeightSplitter(arena)
	n := node(arena, 0, "ACG", "CGT")
	n.Weights = []int{2, 2}

	out := ws.split(n, [][]*KmerSupportNode{
		{{Weight: 2}}, {{Weight: 2}},
	})
	expect.EQ(t, len(out), 0)
}

func TestSliceNodeInheritsAdjacencyOnlyAtOuterEdges(t *testing.T) {
	n := &PositionalKmerNode{
		Kmers:      []Kmer{kmerFor("ACG"), kmerFor("CGT"), kmerFor("GTA")},
		Weights:    []int{1, 1, 1},
		FirstStart: 10,
		FirstEnd:   10,
		Prev:       map[NodeID]struct{}{1: {}},
		Next:       map[NodeID]struct{}{2: {}},
	}
	left := sliceNode(n, []int{1, 1, 1}, 0, 1)
	expect.EQ(t, len(left.Prev), 1)
	expect.EQ(t, len(left.Next), 0)
	expect.EQ(t, left.FirstStart, Pos(10))

	middle := sliceNode(n, []int{1, 1, 1}, 1, 2)
	expect.EQ(t, len(middle.Prev), 0)
	expect.EQ(t, len(middle.Next), 0)
	expect.EQ(t, middle.FirstStart, Pos(11))

	right := sliceNode(n, []int{1, 1, 1}, 2, 3)
	expect.EQ(t, len(right.Prev), 0)
	expect.EQ(t, len(right.Next), 1)
	expect.EQ(t, right.FirstStart, Pos(12))
}

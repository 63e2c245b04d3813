package contigcaller

import (
	"context"
	"testing"

	"github.com/grailbio/testutil/expect"
)

// seqForIndex returns a distinct 3-base sequence for each i in [0,64),
// letting a test build many single-k-mer nodes without firstKmer
// collisions.
func seqForIndex(i int) string {
	const alphabet = "ACGT"
	b := make([]byte, 3)
	for j := 2; j >= 0; j-- {
		b[j] = alphabet[i%4]
		i /= 4
	}
	return string(b)
}

// TestScenarioDivergentTailsShareReferenceFlank covers the branch shape
// where two non-reference tails diverge from a shared reference prefix:
// each tail, called independently, must carry its own anchor back to that
// shared prefix rather than losing it to the other tail's call.
func TestScenarioDivergentTailsShareReferenceFlank(t *testing.T) {
	asm, err := NewAssembler(&sliceSource{}, testAssemblerOpts())
	expect.NoError(t, err)

	ref1 := node(asm.arena, 0, "AAA")
	ref1.IsReference = true
	ref2 := node(asm.arena, 1, "AAC")
	ref2.IsReference = true
	link(ref1, ref2)
	tailA := node(asm.arena, 2, "ACG")
	tailB := node(asm.arena, 2, "ACT")
	link(ref2, tailA)
	link(ref2, tailB)

	for _, n := range []*PositionalKmerNode{ref1, ref2, tailA, tailB} {
		expect.NoError(t, asm.index.add(n))
	}
	asm.tracker.track(&KmerSupportNode{Kmer: tailA.Kmers[0], LastStart: tailA.FirstStart, LastEnd: tailA.FirstEnd, Weight: 1, EvidenceID: 100})
	asm.tracker.track(&KmerSupportNode{Kmer: tailB.Kmers[0], LastStart: tailB.FirstStart, LastEnd: tailB.FirstEnd, Weight: 1, EvidenceID: 200})

	cA, err := asm.processCalledPath([]*PositionalKmerNode{tailA})
	expect.NoError(t, err)
	if cA == nil {
		t.Fatal("expected tailA's contig to be emitted")
	}
	expect.EQ(t, cA.Class, BackwardAnchored)
	expect.EQ(t, cA.Anchors[0].Pos, Pos(0))

	// ref1/ref2 must still be present for tailB: only tailA's own node was
	// consumed above, not the shared flank it merely walked through.
	cB, err := asm.processCalledPath([]*PositionalKmerNode{tailB})
	expect.NoError(t, err)
	if cB == nil {
		t.Fatal("expected tailB's contig to be emitted")
	}
	expect.EQ(t, cB.Class, BackwardAnchored)
	expect.EQ(t, cB.Anchors[0].Pos, Pos(0))
}

// TestScenarioPrematureFlushForcesCall builds a chain wider than the
// configured retain+flush window so the Assembler must force calls through
// safetyFlush rather than waiting for ordinary best-effort calls, while
// still accounting for every piece of evidence exactly once.
func TestScenarioPrematureFlushForcesCall(t *testing.T) {
	const n = 30
	nodes := make([]PositionalKmerNode, n)
	for i := 0; i < n; i++ {
		var prev, next []NodeID
		if i > 0 {
			prev = []NodeID{NodeID(i)}
		}
		if i < n-1 {
			next = []NodeID{NodeID(i + 2)}
		}
		nodes[i] = chainNode(Pos(i), seqForIndex(i), 1, EvidenceID(i+1), prev, next)
	}

	opts := testAssemblerOpts()
	opts.FragmentSize = 10
	opts.RetainWidthMultiple = 1
	opts.FlushWidthMultiple = 1
	opts.MaxEvidenceSupportIntervalWidth = 1000

	asm, err := NewAssembler(&sliceSource{nodes: nodes}, opts)
	expect.NoError(t, err)

	ctx := context.Background()
	totalEvidence := 0
	for {
		c, ok, err := asm.Next(ctx)
		expect.NoError(t, err)
		if !ok {
			break
		}
		totalEvidence += len(c.EvidenceIDs)
	}

	stats := asm.Stats()
	if stats.ForceFlushes == 0 {
		t.Fatal("expected at least one forced call from safetyFlush")
	}
	expect.EQ(t, totalEvidence, n)
	expect.EQ(t, stats.EvidenceRetired, n)
}

// TestScenarioReferenceAlleleDiscardedWithNoResidualBases covers the
// reference-allele case: a non-reference loop shorter than k, flanked by
// reference on both sides, is called as a breakpoint with no residual
// unanchored bases and must be discarded rather than emitted.
func TestScenarioReferenceAlleleDiscardedWithNoResidualBases(t *testing.T) {
	asm, err := NewAssembler(&sliceSource{}, testAssemblerOpts())
	expect.NoError(t, err)

	refBefore := node(asm.arena, 0, "AAA")
	refBefore.IsReference = true
	loop := node(asm.arena, 1, "AAC")
	refAfter := node(asm.arena, 2, "ACG")
	refAfter.IsReference = true
	link(refBefore, loop)
	link(loop, refAfter)

	for _, n := range []*PositionalKmerNode{refBefore, loop, refAfter} {
		expect.NoError(t, asm.index.add(n))
	}
	asm.tracker.track(&KmerSupportNode{Kmer: loop.Kmers[0], LastStart: loop.FirstStart, LastEnd: loop.FirstEnd, Weight: 1, EvidenceID: 1})

	c, err := asm.processCalledPath([]*PositionalKmerNode{loop})
	expect.NoError(t, err)
	if c != nil {
		t.Fatalf("expected the reference-allele loop to be discarded, got %+v", c)
	}

	stats := asm.Stats()
	expect.EQ(t, stats.ReferenceAllelesDiscarded, 1)
	expect.EQ(t, stats.EvidenceRetired, 1)
	expect.EQ(t, stats.ContigsByClass[Breakpoint], 0)
}

// TestScenarioBreakpointWithResidualBasesIsEmitted is the contrasting case:
// a breakpoint whose path contributes bases beyond both anchors' own
// overlap is real novel content and must be emitted, not discarded.
func TestScenarioBreakpointWithResidualBasesIsEmitted(t *testing.T) {
	asm, err := NewAssembler(&sliceSource{}, testAssemblerOpts())
	expect.NoError(t, err)

	refBefore := node(asm.arena, 0, "AAA")
	refBefore.IsReference = true
	n1 := node(asm.arena, 1, "AAC")
	n2 := node(asm.arena, 2, "ACG")
	n3 := node(asm.arena, 3, "CGT")
	refAfter := node(asm.arena, 4, "GTA")
	refAfter.IsReference = true
	link(refBefore, n1)
	link(n1, n2)
	link(n2, n3)
	link(n3, refAfter)

	path := []*PositionalKmerNode{n1, n2, n3}
	for _, n := range []*PositionalKmerNode{refBefore, n1, n2, n3, refAfter} {
		expect.NoError(t, asm.index.add(n))
	}
	for i, n := range path {
		asm.tracker.track(&KmerSupportNode{Kmer: n.Kmers[0], LastStart: n.FirstStart, LastEnd: n.FirstEnd, Weight: 1, EvidenceID: EvidenceID(i + 1)})
	}

	c, err := asm.processCalledPath(path)
	expect.NoError(t, err)
	if c == nil {
		t.Fatal("expected a breakpoint contig with residual bases to be emitted")
	}
	expect.EQ(t, c.Class, Breakpoint)

	stats := asm.Stats()
	expect.EQ(t, stats.ReferenceAllelesDiscarded, 0)
	expect.EQ(t, stats.ContigsByClass[Breakpoint], 1)
	expect.EQ(t, stats.EvidenceRetired, 3)
}

// TestScenarioEvidenceOverreachLogsSoftErrorButStillRetires covers a
// support node whose LastEnd extends past the current input frontier: its
// removal must log a SoftInconsistency, but the evidence is still retired
// rather than dropped.
func TestScenarioEvidenceOverreachLogsSoftErrorButStillRetires(t *testing.T) {
	far := chainNode(5, "TTT", 1, 999, nil, nil)
	asm, err := NewAssembler(&sliceSource{nodes: []PositionalKmerNode{far}}, testAssemblerOpts())
	expect.NoError(t, err)

	n := node(asm.arena, 0, "AAA")
	expect.NoError(t, asm.index.add(n))
	asm.tracker.track(&KmerSupportNode{Kmer: n.Kmers[0], LastStart: 0, LastEnd: 10, Weight: 1, EvidenceID: 1})

	c, err := asm.processCalledPath([]*PositionalKmerNode{n})
	expect.NoError(t, err)
	if c == nil {
		t.Fatal("expected the contig to still be emitted despite the overreaching evidence")
	}
	expect.EQ(t, len(c.EvidenceIDs), 1)
	expect.EQ(t, int64(c.EvidenceIDs[0]), int64(1))

	stats := asm.Stats()
	expect.EQ(t, stats.SoftErrors, 1)
	expect.EQ(t, stats.EvidenceRetired, 1)
}

// TestPropertyConservationAcrossContigs exercises the conservation
// property (every piece of input evidence is retired exactly once, across
// the whole run) over a graph with a branch, where the shared-prefix
// evidence is consumed by whichever tail is called first and the other
// tail's backtrace must fall back cleanly rather than double-retiring it.
func TestPropertyConservationAcrossContigs(t *testing.T) {
	nodes := []PositionalKmerNode{
		chainNode(0, "AAA", 5, 1, nil, []NodeID{2}),
		chainNode(1, "AAC", 5, 2, []NodeID{1}, []NodeID{3, 4}),
		chainNode(2, "ACG", 5, 3, []NodeID{2}, nil),
		chainNode(2, "ACT", 5, 4, []NodeID{2}, nil),
	}
	asm, err := NewAssembler(&sliceSource{nodes: nodes}, testAssemblerOpts())
	expect.NoError(t, err)

	ctx := context.Background()
	seen := map[EvidenceID]bool{}
	for {
		c, ok, err := asm.Next(ctx)
		expect.NoError(t, err)
		if !ok {
			break
		}
		for _, id := range c.EvidenceIDs {
			if seen[id] {
				t.Fatalf("evidence id %d retired more than once", id)
			}
			seen[id] = true
		}
	}

	for id := EvidenceID(1); id <= 4; id++ {
		if !seen[id] {
			t.Fatalf("evidence id %d was never retired", id)
		}
	}
	expect.EQ(t, asm.Stats().EvidenceRetired, 4)
}

// TestPropertySafetyBeforeEmission exercises the safety gate
// (hasKnownSuccessor): a much heavier node is never returned alone once a
// successor claims it, and the same node IS returned alone while that
// successor is still unmaterialized.
func TestPropertySafetyBeforeEmission(t *testing.T) {
	arena := &nodeArena{}
	idx := newPathNodeIndex()
	pc := newMemoContigCaller(idx, testOpts())

	n1 := node(arena, 0, "ACG")
	n1.Weights = []int{100}
	n2 := node(arena, 1, "CGT")
	n2.Weights = []int{1}
	link(n1, n2)
	expect.NoError(t, idx.add(n1))
	expect.NoError(t, idx.add(n2))
	pc.add(n1)
	pc.add(n2)

	// n2 (firstStart 1) is not yet materialized at frontier 0, so nothing
	// has claimed n1 as a predecessor: it is safe to call alone.
	path, ok := pc.bestContig(0)
	expect.True(t, ok)
	expect.EQ(t, len(path), 1)
	expect.EQ(t, int64(path[0].ID()), int64(n1.ID()))

	// Rebuild the same shape in a fresh caller, but materialize both nodes
	// before calling: n1 now has a known successor and must never be
	// returned alone. The two-node path scores n1's weight plus n2's (101),
	// so the whole chain is what gets called.
	idx2 := newPathNodeIndex()
	pc2 := newMemoContigCaller(idx2, testOpts())
	a2 := node(arena, 0, "ACG")
	a2.Weights = []int{100}
	b2 := node(arena, 1, "CGT")
	b2.Weights = []int{1}
	link(a2, b2)
	expect.NoError(t, idx2.add(a2))
	expect.NoError(t, idx2.add(b2))
	pc2.add(a2)
	pc2.add(b2)
	pc2.processPending(1)

	path2, ok := pc2.bestContig(2)
	expect.True(t, ok)
	expect.EQ(t, len(path2), 2)
	expect.EQ(t, int64(path2[0].ID()), int64(a2.ID()))
	expect.EQ(t, int64(path2[1].ID()), int64(b2.ID()))
}

// TestPropertyMemoizationEquivalence exercises MemoContigCaller.selfCheck
// after an add/remove sequence: the incrementally-maintained callable set
// must agree with one freshly rebuilt from the same live nodes.
func TestPropertyMemoizationEquivalence(t *testing.T) {
	arena := &nodeArena{}
	idx := newPathNodeIndex()
	pc := newMemoContigCaller(idx, testOpts())

	n1 := node(arena, 0, "ACG")
	n2 := node(arena, 1, "CGT")
	n3 := node(arena, 2, "GTA")
	link(n1, n2)
	link(n2, n3)
	expect.NoError(t, idx.add(n1))
	expect.NoError(t, idx.add(n2))
	expect.NoError(t, idx.add(n3))
	pc.add(n1)
	pc.add(n2)
	pc.add(n3)
	pc.processPending(2)

	idx.remove(n2)
	pc.remove(n2)

	expect.NoError(t, pc.selfCheck(2))
}

// TestPropertyNodeIntervalDisjointness exercises the PathNodeIndex
// invariant that two live nodes sharing the same leading k-mer must have
// disjoint [FirstStart,FirstEnd] intervals.
func TestPropertyNodeIntervalDisjointness(t *testing.T) {
	arena := &nodeArena{}
	idx := newPathNodeIndex()

	n1 := node(arena, 0, "ACG")
	n1.FirstEnd = 5
	n2 := node(arena, 6, "ACG")
	n2.FirstEnd = 10
	expect.NoError(t, idx.add(n1))
	expect.NoError(t, idx.add(n2))

	n3 := node(arena, 3, "ACG")
	n3.FirstEnd = 7
	if err := idx.add(n3); err == nil {
		t.Fatal("expected an overlapping same-firstKmer interval to be rejected")
	}
}

// TestPropertyReferenceFlushSoundness exercises flushReferenceNodes
// directly: a reference node past the boundary with no live successor is
// flushed, one with a live successor survives, and one not yet past the
// boundary survives regardless of reachability.
func TestPropertyReferenceFlushSoundness(t *testing.T) {
	asm, err := NewAssembler(&sliceSource{}, testAssemblerOpts())
	expect.NoError(t, err)

	stale := node(asm.arena, 0, "AAA")
	stale.IsReference = true
	reachable := node(asm.arena, 0, "AAC")
	reachable.IsReference = true
	successor := node(asm.arena, 5, "ACG")
	link(reachable, successor)
	future := node(asm.arena, 20, "CGT")
	future.IsReference = true

	for _, n := range []*PositionalKmerNode{stale, reachable, successor, future} {
		expect.NoError(t, asm.index.add(n))
	}

	asm.flushReferenceNodes(10)

	if _, ok := asm.index.get(stale.ID()); ok {
		t.Fatal("expected the unreachable reference node to be flushed")
	}
	if _, ok := asm.index.get(reachable.ID()); !ok {
		t.Fatal("expected the reference node with a live successor to survive the flush")
	}
	if _, ok := asm.index.get(future.ID()); !ok {
		t.Fatal("expected the reference node beyond the boundary to survive the flush")
	}
}

// TestPropertyAnchorBonusDominance exercises anchoredScoreBonus directly:
// a lightly-weighted reference node must outscore an arbitrarily heavier
// non-reference one of the same length.
func TestPropertyAnchorBonusDominance(t *testing.T) {
	arena := &nodeArena{}
	idx := newPathNodeIndex()
	pc := newMemoContigCaller(idx, testOpts())

	ref := node(arena, 0, "ACG")
	ref.Weights = []int{1}
	ref.IsReference = true
	heavy := node(arena, 5, "CCC")
	heavy.Weights = []int{1000000}

	expect.NoError(t, idx.add(ref))
	expect.NoError(t, idx.add(heavy))
	pc.add(ref)
	pc.add(heavy)
	pc.processPending(5)

	refSid := pc.byNode[ref.ID()][0]
	heavySid := pc.byNode[heavy.ID()][0]
	refScore := pc.resolve(pc.subIntervals[refSid]).score
	heavyScore := pc.resolve(pc.subIntervals[heavySid]).score

	if refScore <= heavyScore {
		t.Fatalf("expected anchoredScoreBonus to dominate any same-length weight difference: ref=%d heavy=%d", refScore, heavyScore)
	}
}

package contigcaller

import (
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestEvidenceTrackerUntrackRetiresOverlappingSupport(t *testing.T) {
	tr := newEvidenceTracker()
	s1 := &KmerSupportNode{Kmer: kmerFor("ACG"), LastStart: 0, LastEnd: 0, Weight: 3, EvidenceID: 1}
	s2 := &KmerSupportNode{Kmer: kmerFor("ACG"), LastStart: 0, LastEnd: 0, Weight: 2, EvidenceID: 2}
	tr.track(s1)
	tr.track(s2)
	expect.True(t, tr.tracked(1))
	expect.True(t, tr.tracked(2))

	retired, matched := tr.untrack([]calledOffset{{Kmer: kmerFor("ACG"), Pos: 0}})
	expect.EQ(t, len(retired), 2)
	expect.EQ(t, len(matched), 1)
	expect.EQ(t, len(matched[0]), 2)
	expect.False(t, tr.tracked(1))
	expect.False(t, tr.tracked(2))
	expect.EQ(t, len(tr.byKmer[kmerFor("ACG")]), 0)
}

func TestEvidenceTrackerUntrackIgnoresNonOverlapping(t *testing.T) {
	tr := newEvidenceTracker()
	s1 := &KmerSupportNode{Kmer: kmerFor("ACG"), LastStart: 10, LastEnd: 10, Weight: 3, EvidenceID: 1}
	tr.track(s1)

	retired, matched := tr.untrack([]calledOffset{{Kmer: kmerFor("ACG"), Pos: 0}})
	expect.EQ(t, len(retired), 0)
	expect.EQ(t, len(matched[0]), 0)
	expect.True(t, tr.tracked(1))
}

func TestEvidenceTrackerUntrackIsIdempotentPerID(t *testing.T) {
	tr := newEvidenceTracker()
	s1 := &KmerSupportNode{Kmer: kmerFor("ACG"), LastStart: 0, LastEnd: 1, Weight: 3, EvidenceID: 1}
	s2 := &KmerSupportNode{Kmer: kmerFor("CGT"), LastStart: 1, LastEnd: 1, Weight: 3, EvidenceID: 1}
	tr.track(s1)
	tr.track(s2)

	retired, _ := tr.untrack([]calledOffset{
		{Kmer: kmerFor("ACG"), Pos: 0},
		{Kmer: kmerFor("CGT"), Pos: 1},
	})
	expect.EQ(t, len(retired), 1)
	expect.False(t, tr.tracked(1))
}

func TestEvidenceTrackerSupport(t *testing.T) {
	tr := newEvidenceTracker()
	s1 := &KmerSupportNode{Kmer: kmerFor("ACG"), LastStart: 0, LastEnd: 0, Weight: 3, EvidenceID: 7}
	tr.track(s1)
	view := tr.support(map[EvidenceID]struct{}{7: {}})
	expect.EQ(t, len(view[7]), 1)
	expect.EQ(t, view[7][0].Weight, 3)
}

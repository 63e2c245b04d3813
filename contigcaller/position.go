package contigcaller

import "github.com/grailbio/base/log"

// Pos is a genomic-like linear coordinate: the position at which a k-mer's
// first base occurs in the positional interval graph. Unlike a paired-read
// fragment coordinate, there is exactly one coordinate space here — no R1/R2
// offsetting.
type Pos int64

// PosRange is a closed range [Start, End], matching the node interval
// convention in the data model (firstStart, firstEnd are both inclusive).
type PosRange struct{ Start, End Pos }

// Equal reports whether the two ranges are identical.
func (r PosRange) Equal(other PosRange) bool {
	return r.Start == other.Start && r.End == other.End
}

// Overlaps reports whether the two closed ranges share at least one position.
func (r PosRange) Overlaps(other PosRange) bool {
	return r.Start <= other.End && other.Start <= r.End
}

// newPosRange creates a new closed PosRange.
//
// REQUIRES: start <= end
func newPosRange(start, end Pos) PosRange {
	if end < start {
		log.Panicf("inverted range [%d,%d]", start, end)
	}
	return PosRange{start, end}
}

func (r PosRange) span() int {
	return int(r.End-r.Start) + 1
}

func maxPos(p1, p2 Pos) Pos {
	if p1 > p2 {
		return p1
	}
	return p2
}

func minPos(p1, p2 Pos) Pos {
	if p1 < p2 {
		return p1
	}
	return p2
}

// posInfinity is used as the "no more input" frontier sentinel.
const posInfinity = Pos(1<<63 - 1)

package contigcaller

// AnchorClass classifies an emitted contig by how much of it is anchored to
// reference.
type AnchorClass int

const (
	// Unanchored means neither end of the contig reached a reference node.
	Unanchored AnchorClass = iota
	// ForwardAnchored means only the trailing end reached reference.
	ForwardAnchored
	// BackwardAnchored means only the leading end reached reference.
	BackwardAnchored
	// Breakpoint means both ends reached reference with residual
	// unanchored bases between them.
	Breakpoint
)

func (c AnchorClass) String() string {
	switch c {
	case Unanchored:
		return "unanchored"
	case ForwardAnchored:
		return "forward-anchored"
	case BackwardAnchored:
		return "backward-anchored"
	case Breakpoint:
		return "breakpoint"
	default:
		return "unknown"
	}
}

// ContigStats summarizes a single emitted contig, reported to
// Opts.ContigStatsSink.
type ContigStats struct {
	Class        AnchorClass
	BaseCount    int
	EvidenceUsed int
}

// Stats accumulates run-level counters across the lifetime of an Assembler.
type Stats struct {
	// ContigsByClass[c] is the number of contigs emitted with AnchorClass c.
	ContigsByClass [4]int
	// ReferenceAllelesDiscarded is the number of breakpoint calls with zero
	// residual bases, which are discarded rather than emitted.
	ReferenceAllelesDiscarded int
	// EvidenceRetired is the total number of evidence ids retired across
	// all calls (including the discarded-reference-allele case).
	EvidenceRetired int
	// ForceFlushes is the number of contigs force-called by the
	// Assembler's safety-flush step (callBestContigBefore calls that
	// returned a path).
	ForceFlushes int
	// MisassembliesFixed is the number of contigs re-segmented by
	// MisassemblyFixer.
	MisassembliesFixed int
	// SoftErrors is the number of SoftInconsistency conditions logged.
	SoftErrors int
}

// Merge adds the field values of two Stats and returns the sum.
func (s Stats) Merge(o Stats) Stats {
	for i, n := range o.ContigsByClass {
		s.ContigsByClass[i] += n
	}
	s.ReferenceAllelesDiscarded += o.ReferenceAllelesDiscarded
	s.EvidenceRetired += o.EvidenceRetired
	s.ForceFlushes += o.ForceFlushes
	s.MisassembliesFixed += o.MisassembliesFixed
	s.SoftErrors += o.SoftErrors
	return s
}

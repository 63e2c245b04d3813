package contigcaller

// Opts configures an Assembler. All width/length fields are expressed in
// base-pair units unless noted otherwise.
type Opts struct {
	// K is the k-mer length; it governs overlap between consecutive nodes
	// and the base/quality derivation in sequence synthesis.
	K int

	// ReferenceIndex is an opaque identifier attached to every emitted
	// Contig, e.g. the reference/chromosome this stream belongs to.
	ReferenceIndex int

	// MaxEvidenceSupportIntervalWidth bounds how far a single piece of
	// evidence can reach past the node it directly supports; used to
	// decide when it's safe to flush or call without risking a later
	// input node extending an already-called contig.
	MaxEvidenceSupportIntervalWidth int

	// MaxAnchorLength is a floor on anchor-extension length: an anchor is
	// extended to at least this many bases when the graph allows it.
	MaxAnchorLength int

	// MaxExpectedBreakendLengthMultiple, multiplied by FragmentSize, is
	// the misassembly-detection length threshold.
	MaxExpectedBreakendLengthMultiple float64

	// RetainWidthMultiple, multiplied by FragmentSize, is the retain width.
	// A forced flush begins once the live graph's start trails the
	// frontier by more than the retain width plus the flush width;
	// reference nodes ending more than the retain width behind the
	// frontier are flushed when unreachable.
	RetainWidthMultiple float64

	// FlushWidthMultiple, multiplied by FragmentSize, is the width of the
	// window a forced flush clears once triggered.
	FlushWidthMultiple float64

	// AnchorLength is the minimum number of anchor bases; validate requires
	// 0 <= AnchorLength <= MaxAnchorLength. Contig classification does not
	// consult it: a side counts as anchored whenever the anchor walk on
	// that side returns at least one node.
	AnchorLength int

	// FragmentSize is the nominal fragment/insert size used to scale the
	// *Multiple options above into absolute base-pair widths.
	FragmentSize int

	// RemoveMisassembledPartialContigsDuringAssembly enables a pruning
	// pass, run as each input node is loaded, that force-calls a partial
	// contig found to contain a k-mer repeat rather than waiting for it to
	// become callable: the call removes it from the live graph, and the
	// misassembly-fixed contig is queued for emission.
	RemoveMisassembledPartialContigsDuringAssembly bool

	// EnableSanityChecks turns on MemoContigCaller's debug-only self
	// check: on each pass of Assembler.Next, before the best-effort call,
	// the callable set is compared against a freshly rebuilt caller over
	// the same live node set, raising InvariantViolation on mismatch.
	// Off by default; it recomputes the whole frontier, so it is too
	// expensive for production use.
	EnableSanityChecks bool

	// QualityScale converts a per-offset k-mer weight into a base
	// quality value during sequence synthesis. Zero selects the default
	// scale of 1.0, substituted by validate.
	QualityScale float64

	// ContigStatsSink, if non-nil, is invoked once per emitted contig.
	ContigStatsSink func(ContigStats)
	// CallerStateSink, if non-nil, is invoked with a snapshot of the
	// caller's frontier on every exportState call.
	CallerStateSink func(CallerStateSnapshot)
	// GraphSink, if non-nil, is invoked with a snapshot of the live graph.
	// Returning an error disables the sink (logged as SoftInconsistency).
	GraphSink func(GraphSnapshot) error
}

// DefaultOpts holds the package's default configuration. Callers typically
// copy it and override specific fields.
var DefaultOpts = Opts{
	K:                                 31,
	MaxEvidenceSupportIntervalWidth:   500,
	MaxAnchorLength:                   150,
	MaxExpectedBreakendLengthMultiple: 1.5,
	RetainWidthMultiple:               2.0,
	FlushWidthMultiple:                1.0,
	AnchorLength:                      35,
	FragmentSize:                      300,
	QualityScale:                      1.0,
}

// validate checks that Opts carries the fields required to construct an
// Assembler, returning a *Error{Kind: ConfigurationFailure} describing the
// first problem found.
func (o *Opts) validate() error {
	switch {
	case o.K <= 0:
		return newError(ConfigurationFailure, "K must be positive, got %d", o.K)
	case o.K > 32:
		return newError(ConfigurationFailure, "K must be <= 32 (kmers are packed into a uint64), got %d", o.K)
	case o.MaxEvidenceSupportIntervalWidth < 0:
		return newError(ConfigurationFailure, "MaxEvidenceSupportIntervalWidth must be >= 0, got %d", o.MaxEvidenceSupportIntervalWidth)
	case o.AnchorLength < 0:
		return newError(ConfigurationFailure, "AnchorLength must be >= 0, got %d", o.AnchorLength)
	case o.MaxAnchorLength < o.AnchorLength:
		return newError(ConfigurationFailure, "MaxAnchorLength (%d) must be >= AnchorLength (%d)", o.MaxAnchorLength, o.AnchorLength)
	case o.FragmentSize <= 0:
		return newError(ConfigurationFailure, "FragmentSize must be positive, got %d", o.FragmentSize)
	case o.RetainWidthMultiple <= 0:
		return newError(ConfigurationFailure, "RetainWidthMultiple must be positive, got %f", o.RetainWidthMultiple)
	case o.FlushWidthMultiple <= 0:
		return newError(ConfigurationFailure, "FlushWidthMultiple must be positive, got %f", o.FlushWidthMultiple)
	}
	if o.QualityScale == 0 {
		o.QualityScale = 1.0
	}
	return nil
}

func (o *Opts) retainWidth() Pos {
	return Pos(float64(o.FragmentSize) * o.RetainWidthMultiple)
}

func (o *Opts) flushWidth() Pos {
	return Pos(float64(o.FragmentSize) * o.FlushWidthMultiple)
}

func (o *Opts) maxExpectedBreakendLength() Pos {
	return Pos(float64(o.FragmentSize) * o.MaxExpectedBreakendLengthMultiple)
}

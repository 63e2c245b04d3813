package contigcaller

import (
	"context"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// PositionalKmerNodeSource is the upstream collaborator: a finite stream of
// PositionalKmerNode records sorted ascending by FirstStart. Producing this
// stream (k-merization, error correction, bubble collapse) is out of scope
// here. Prev/Next adjacency on each node must reference other nodes by
// their 1-based arrival ordinal — the same ordinal this package's node
// arena assigns as it consumes the stream, so a node's id is always equal
// to the count of Next calls (including its own) that have returned ok so
// far.
type PositionalKmerNodeSource interface {
	Next() (node PositionalKmerNode, ok bool, err error)
}

// AnchorPos is one endpoint of a contig's reference anchoring.
type AnchorPos struct {
	Pos       Pos
	BaseCount int
}

// Contig is one called, classified, anchor-extended output record.
type Contig struct {
	Bases          []byte
	Quals          []byte
	Class          AnchorClass
	Anchors        [2]AnchorPos
	EvidenceIDs    []EvidenceID
	ReferenceIndex int
}

// Assembler is the streaming orchestrator: it loads PositionalKmerNodes
// from a PositionalKmerNodeSource, drives MemoContigCaller, and emits
// called, classified contigs in a single pull-driven, lazy sequence.
type Assembler struct {
	opts   Opts
	source PositionalKmerNodeSource
	arena  *nodeArena

	index    *PathNodeIndex
	tracker  *EvidenceTracker
	caller   *MemoContigCaller
	splitter *WeightSplitter
	fixer    *MisassemblyFixer
	anchorer *AnchorExtender

	havePeek        bool
	peeked          *PositionalKmerNode
	inputDone       bool
	hasLoadedAny    bool
	lastLoadedStart Pos

	outputQueue []Contig
	stats       Stats
	fatal       fatalOnce
}

// emitTelemetry sends the configured optional sinks a snapshot of the
// current caller/graph state, per spec §6's telemetry-sinks contract. A
// GraphSink failure is a SoftInconsistency: log it and disable the sink
// rather than letting a visualization-export I/O error affect output.
func (a *Assembler) emitTelemetry() {
	a.caller.exportState(a.opts.CallerStateSink)
	if a.opts.GraphSink == nil {
		return
	}
	if err := a.opts.GraphSink(graphSnapshot(a.index)); err != nil {
		log.Error.Printf("contigcaller: graph sink failed, disabling: %v", err)
		a.stats.SoftErrors++
		a.opts.GraphSink = nil
	}
}

// failFatal records err as the run's terminating error; only the first
// call has any effect (errors.Once semantics), matching the "at most one
// fatal error" contract of Assembler.Next. The first call also logs a
// richer, annotated chain via errors.E, since err's own Error() string
// stops at the single Msg/Cause pair it was constructed with.
func (a *Assembler) failFatal(err error) error {
	if a.fatal.get() == nil {
		log.Error.Printf("contigcaller: aborting: %v", errors.E(err, "Assembler.Next terminating"))
	}
	a.fatal.set(err)
	return err
}

// NewAssembler validates opts and constructs an Assembler pulling from
// source. It returns a ConfigurationFailure *Error if opts is incomplete.
func NewAssembler(source PositionalKmerNodeSource, opts Opts) (*Assembler, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	index := newPathNodeIndex()
	a := &Assembler{
		opts:    opts,
		source:  source,
		arena:   &nodeArena{},
		index:   index,
		tracker: newEvidenceTracker(),
	}
	a.caller = newMemoContigCaller(index, &a.opts)
	a.splitter = newWeightSplitter(a.arena)
	a.fixer = newMisassemblyFixer()
	a.anchorer = newAnchorExtender(index, &a.opts)
	return a, nil
}

// Stats returns the accumulated run-level counters so far.
func (a *Assembler) Stats() Stats { return a.stats }

// peek reads and buffers the next input node without consuming it,
// returning the same buffered node on repeated calls until it's actually
// loaded. It raises InvariantViolation if input ordering is violated.
func (a *Assembler) peek() (*PositionalKmerNode, bool) {
	if a.havePeek {
		return a.peeked, true
	}
	if a.inputDone {
		return nil, false
	}
	raw, ok, err := a.source.Next()
	if err != nil {
		a.failFatal(wrapError(InvariantViolation, err, "reading input"))
		a.inputDone = true
		return nil, false
	}
	if !ok {
		a.inputDone = true
		return nil, false
	}
	if a.hasLoadedAny && raw.FirstStart < a.lastLoadedStart {
		a.failFatal(newError(InvariantViolation,
			"input out of order: node firstStart %d arrived after %d", raw.FirstStart, a.lastLoadedStart))
		a.inputDone = true
		return nil, false
	}
	node := a.arena.alloc(&raw)
	a.peeked = node
	a.havePeek = true
	return node, true
}

func (a *Assembler) consumePeek() {
	a.havePeek = false
	a.peeked = nil
}

// frontierPos is the smallest input FirstStart not yet loaded, or
// posInfinity once input is exhausted.
func (a *Assembler) frontierPos() Pos {
	n, ok := a.peek()
	if !ok {
		return posInfinity
	}
	return n.FirstStart
}

func (a *Assembler) loadNode(n *PositionalKmerNode) error {
	if err := a.index.add(n); err != nil {
		return err
	}
	a.caller.add(n)
	for i, supports := range n.SupportByOffset {
		for _, sup := range supports {
			a.tracker.track(&KmerSupportNode{
				Kmer:       n.Kmers[i],
				LastStart:  n.FirstStart + Pos(i),
				LastEnd:    n.FirstEnd + Pos(i),
				Weight:     sup.Weight,
				EvidenceID: sup.EvidenceID,
			})
		}
	}
	a.lastLoadedStart = n.FirstStart
	a.hasLoadedAny = true
	return nil
}

// loadBatch loads every input node with FirstStart <= boundary.
func (a *Assembler) loadBatch(boundary Pos) error {
	for {
		n, ok := a.peek()
		if !ok {
			return a.fatal.get()
		}
		if n.FirstStart > boundary {
			return nil
		}
		a.consumePeek()
		if err := a.loadNode(n); err != nil {
			return err
		}
		if a.opts.RemoveMisassembledPartialContigsDuringAssembly {
			a.pruneMisassembledPartial(n)
		}
	}
}

// pruneMisassembledPartial forcibly calls the best path ending at or
// before n if that path already contains a k-mer repeat, instead of
// waiting for it to surface through the ordinary best-effort call.
func (a *Assembler) pruneMisassembledPartial(n *PositionalKmerNode) {
	floor := n.FirstStart - a.opts.maxExpectedBreakendLength()
	path := a.caller.frontierPath(n.FirstStart, floor)
	if len(path) == 0 {
		return
	}
	if _, has := hasKmerRepeat(path); !has {
		return
	}
	called, ok := a.caller.callBestContigBefore(a.frontierPos(), n.LastEnd()+1)
	if !ok {
		return
	}
	if c, err := a.processCalledPath(called); err == nil && c != nil {
		a.outputQueue = append(a.outputQueue, *c)
	}
}

// flushReferenceNodes removes every live reference node ending before
// boundary that has no remaining live successor, per the reference-flush
// soundness property.
func (a *Assembler) flushReferenceNodes(boundary Pos) {
	candidates := append([]*PositionalKmerNode(nil), a.index.byPosition...)
	for _, n := range candidates {
		if !n.IsReference || n.LastEnd() >= boundary {
			continue
		}
		reachable := false
		for id := range n.Next {
			if _, ok := a.index.get(id); ok {
				reachable = true
				break
			}
		}
		if reachable {
			continue
		}
		a.index.remove(n)
		a.caller.remove(n)
	}
}

// safetyFlush bounds loaded-graph width: while the live graph's start lags
// the frontier by more than retainWidth+flushWidth, it force-calls
// contigs (queuing them for emission) until the window is back in bounds,
// then flushes unreachable reference nodes.
func (a *Assembler) safetyFlush() error {
	retain := a.opts.retainWidth()
	flush := a.opts.flushWidth()
	for {
		loadedStart := a.index.firstStart()
		if loadedStart == posInfinity {
			break
		}
		frontier := a.frontierPos()
		if loadedStart+retain+flush >= frontier {
			break
		}
		path, ok := a.caller.callBestContigBefore(frontier, loadedStart+flush)
		if !ok {
			break
		}
		a.stats.ForceFlushes++
		c, err := a.processCalledPath(path)
		if err != nil {
			return err
		}
		if c != nil {
			a.outputQueue = append(a.outputQueue, *c)
		}
		a.emitTelemetry()
	}
	// Once input is exhausted there is no more window to bound: everything
	// still live gets a fair chance to be called rather than being treated
	// as unreachably far in the past.
	if frontier := a.frontierPos(); frontier != posInfinity {
		a.flushReferenceNodes(frontier - retain)
	}
	return nil
}

func flattenOffsets(path []*PositionalKmerNode) ([]calledOffset, []offsetRef) {
	var offsets []calledOffset
	var refs []offsetRef
	for ni, n := range path {
		for i := range n.Kmers {
			offsets = append(offsets, calledOffset{Kmer: n.Kmers[i], Pos: n.FirstStart + Pos(i)})
			refs = append(refs, offsetRef{nodeIdx: ni, offset: i})
		}
	}
	return offsets, refs
}

type offsetRef struct {
	nodeIdx int
	offset  int
}

// subtractWeight removes, from each live node along path, the weight
// contributed by the support nodes matched at its offsets, re-adding
// whatever WeightSplitter replacements survive.
func (a *Assembler) subtractWeight(path []*PositionalKmerNode, refs []offsetRef, matched [][]*KmerSupportNode) {
	for ni, n := range path {
		live, ok := a.index.get(n.id)
		if !ok {
			continue
		}
		perOffset := make([][]*KmerSupportNode, live.Len())
		for i, ref := range refs {
			if ref.nodeIdx == ni && ref.offset < len(perOffset) {
				perOffset[ref.offset] = matched[i]
			}
		}
		replacements := a.splitter.split(live, perOffset)
		a.index.remove(live)
		a.caller.remove(live)
		for _, r := range replacements {
			if err := a.index.add(r); err != nil {
				log.Error.Printf("contigcaller: could not re-add weight-split replacement of node %d: %v", live.id, err)
				continue
			}
			a.caller.add(r)
		}
	}
}

func classifyContig(k int, backward, forward []*PositionalKmerNode) (AnchorClass, [2]AnchorPos) {
	var anchors [2]AnchorPos
	hasBackward := len(backward) > 0
	hasForward := len(forward) > 0
	if hasBackward {
		anchors[0] = AnchorPos{Pos: backward[0].FirstStart, BaseCount: pathBaseLength(backward, k)}
	}
	if hasForward {
		last := forward[len(forward)-1]
		anchors[1] = AnchorPos{Pos: last.LastStart(), BaseCount: pathBaseLength(forward, k)}
	}
	switch {
	case hasBackward && hasForward:
		return Breakpoint, anchors
	case hasBackward:
		return BackwardAnchored, anchors
	case hasForward:
		return ForwardAnchored, anchors
	default:
		return Unanchored, anchors
	}
}

// processCalledPath turns a caller-returned path into a (possibly nil,
// meaning "discarded reference allele") Contig: it fixes misassembly,
// retires evidence, subtracts weight, extends anchors, and synthesizes the
// output sequence.
func (a *Assembler) processCalledPath(path []*PositionalKmerNode) (*Contig, error) {
	if _, has := hasKmerRepeat(path); has {
		original := path
		path = a.fixer.fix(path)
		a.stats.MisassembliesFixed++
		// Nodes strictly beyond the truncated prefix are dropped from the
		// called contig but were already claimed by this call's backtrace;
		// they must leave the live graph too, or they'd linger forever with
		// a permanently unreachable (consumed) sub-interval. Their evidence
		// stays tracked, matching the "strict subset" truncation semantics.
		for _, n := range original[len(path):] {
			if live, ok := a.index.get(n.id); ok {
				a.index.remove(live)
				a.caller.remove(live)
			}
		}
	}
	if len(path) == 0 {
		return nil, nil
	}

	offsets, refs := flattenOffsets(path)
	retired, matched := a.tracker.untrack(offsets)

	frontier := a.frontierPos()
	for _, hits := range matched {
		for _, s := range hits {
			if s.LastEnd > frontier {
				log.Error.Printf("contigcaller: evidence %d extends past input frontier (%d > %d)", s.EvidenceID, s.LastEnd, frontier)
				a.stats.SoftErrors++
			}
		}
	}

	if len(retired) == 0 {
		log.Error.Printf("contigcaller: called contig carries no tracked evidence; removing its nodes directly")
		a.stats.SoftErrors++
		for _, n := range path {
			if live, ok := a.index.get(n.id); ok {
				a.index.remove(live)
				a.caller.remove(live)
			}
		}
	} else {
		a.subtractWeight(path, refs, matched)
	}
	a.stats.EvidenceRetired += len(retired)

	backward, forward := a.anchorer.extend(path)
	bases, quals := synthesizeSequence(path, a.opts.K, a.opts.QualityScale)
	class, anchors := classifyContig(a.opts.K, backward, forward)

	// A two-sided-anchored contig's synthesized bases always include one
	// k-1 overlap absorbed from each anchor junction (synthesizeSequence
	// never emits fewer than k bases for a non-empty path); what matters
	// for "is this just the reference allele" is the residual beyond both
	// of those overlaps, not the raw synthesized length.
	if class == Breakpoint {
		residual := len(bases) - 2*(a.opts.K-1)
		if residual <= 0 {
			a.stats.ReferenceAllelesDiscarded++
			return nil, nil
		}
	}
	a.stats.ContigsByClass[class]++

	evidenceIDs := make([]EvidenceID, 0, len(retired))
	for id := range retired {
		evidenceIDs = append(evidenceIDs, id)
	}

	c := &Contig{
		Bases:          bases,
		Quals:          quals,
		Class:          class,
		Anchors:        anchors,
		EvidenceIDs:    evidenceIDs,
		ReferenceIndex: a.opts.ReferenceIndex,
	}
	if a.opts.ContigStatsSink != nil {
		a.opts.ContigStatsSink(ContigStats{Class: class, BaseCount: len(bases), EvidenceUsed: len(evidenceIDs)})
	}
	return c, nil
}

// advanceInput loads the next batch of input (every node reachable within
// maxEvidenceSupportIntervalWidth of the current frontier) and flushes
// whatever reference nodes fall out of the retain window as a result.
func (a *Assembler) advanceInput() error {
	n, ok := a.peek()
	if !ok {
		return a.fatal.get()
	}
	boundary := n.FirstStart + Pos(a.opts.MaxEvidenceSupportIntervalWidth)
	if err := a.loadBatch(boundary); err != nil {
		return err
	}
	if frontier := a.frontierPos(); frontier != posInfinity {
		a.flushReferenceNodes(frontier - a.opts.retainWidth())
	}
	return nil
}

// Next pulls the next called contig, or returns ok=false when the input
// stream and live graph are both exhausted. A non-nil error is fatal: no
// further contigs will be produced by subsequent calls.
func (a *Assembler) Next(ctx context.Context) (Contig, bool, error) {
	for {
		if err := a.fatal.get(); err != nil {
			return Contig{}, false, err
		}
		select {
		case <-ctx.Done():
			return Contig{}, false, nil
		default:
		}

		if len(a.outputQueue) > 0 {
			c := a.outputQueue[0]
			a.outputQueue = a.outputQueue[1:]
			return c, true, nil
		}

		a.emitTelemetry()

		if err := a.safetyFlush(); err != nil {
			return Contig{}, false, a.failFatal(err)
		}
		if len(a.outputQueue) > 0 {
			continue
		}

		if a.opts.EnableSanityChecks {
			if err := a.caller.selfCheck(a.frontierPos()); err != nil {
				return Contig{}, false, a.failFatal(err)
			}
		}

		if path, ok := a.caller.bestContig(a.frontierPos()); ok {
			c, err := a.processCalledPath(path)
			if err != nil {
				return Contig{}, false, a.failFatal(err)
			}
			if c != nil {
				return *c, true, nil
			}
			continue
		}

		if a.inputDone {
			if a.index.len() == 0 {
				return Contig{}, false, nil
			}
			log.Error.Printf("contigcaller: input exhausted with %d nodes still live", a.index.len())
			a.stats.SoftErrors++
			return Contig{}, false, nil
		}

		if err := a.advanceInput(); err != nil {
			return Contig{}, false, a.failFatal(err)
		}
	}
}

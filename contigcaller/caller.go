package contigcaller

import (
	"container/heap"
	"encoding/binary"
	"sort"

	"github.com/grailbio/base/log"
	"github.com/minio/highwayhash"
)

// anchoredScoreBonus is added once to any sub-interval's score the moment
// its path becomes reference-anchored. It is large enough that the
// longest anchored extension always outranks any unanchored tail, however
// many low-weight non-reference nodes that tail accumulates.
const anchoredScoreBonus = int64(1) << 40

type subIntervalState int

const (
	liveState subIntervalState = iota
	consumedState
	invalidState
)

type subIntervalID int64

// subInterval is a partition piece of a loaded node's first-position
// interval over which the best incoming predecessor and score are
// constant: partitionByPredecessor splits [FirstStart,FirstEnd] at every
// point where the winning predecessor candidate changes, so a node with
// FirstStart != FirstEnd and multiple Prev candidates valid over
// different sub-ranges gets one subInterval per constant-winner range
// rather than a single node-wide choice.
type subInterval struct {
	id        subIntervalID
	node      NodeID
	firstKmer Kmer
	start, end Pos

	score    int64
	anchored bool

	hasPred bool
	pred    subIntervalID

	hasKnownSuccessor bool
	dirty             bool
	state             subIntervalState
}

// subIntervalHeap is a max-heap on score, tie-broken by ascending firstKmer
// then ascending node id — the documented resolution of the tie-break
// open question.
type subIntervalHeap struct {
	items []subIntervalID
	owner *MemoContigCaller
}

func (h *subIntervalHeap) Len() int { return len(h.items) }
func (h *subIntervalHeap) Less(i, j int) bool {
	a, b := h.owner.subIntervals[h.items[i]], h.owner.subIntervals[h.items[j]]
	if a.score != b.score {
		return a.score > b.score
	}
	if a.firstKmer != b.firstKmer {
		return a.firstKmer < b.firstKmer
	}
	return a.node < b.node
}
func (h *subIntervalHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *subIntervalHeap) Push(x interface{}) { h.items = append(h.items, x.(subIntervalID)) }
func (h *subIntervalHeap) Pop() interface{} {
	n := len(h.items)
	x := h.items[n-1]
	h.items = h.items[:n-1]
	return x
}

// MemoContigCaller maintains the score-annotated frontier over node
// sub-intervals and gives back the best completed path whenever the
// Assembler asks for one.
type MemoContigCaller struct {
	index *PathNodeIndex
	opts  *Opts

	pendingNodes []*PositionalKmerNode

	subIntervals map[subIntervalID]*subInterval
	byNode       map[NodeID][]subIntervalID
	nextID       subIntervalID

	callable *subIntervalHeap
}

func newMemoContigCaller(index *PathNodeIndex, opts *Opts) *MemoContigCaller {
	pc := &MemoContigCaller{
		index:        index,
		opts:         opts,
		subIntervals: make(map[subIntervalID]*subInterval),
		byNode:       make(map[NodeID][]subIntervalID),
	}
	pc.callable = &subIntervalHeap{owner: pc}
	heap.Init(pc.callable)
	return pc
}

// add announces that node has entered the live graph; it is queued and
// materialized into a sub-interval the next time bestContig processes a
// frontier at or past node.FirstStart.
func (pc *MemoContigCaller) add(node *PositionalKmerNode) {
	pc.pendingNodes = append(pc.pendingNodes, node)
}

// remove announces that node has left the live graph. All sub-intervals it
// owns become invalid; any sub-interval that chose one of them as its
// predecessor is marked dirty and is recomputed the next time it's
// inspected (lazy invalidation, per the frontier design).
func (pc *MemoContigCaller) remove(node *PositionalKmerNode) {
	owned := pc.byNode[node.id]
	owning := make(map[subIntervalID]bool, len(owned))
	for _, sid := range owned {
		owning[sid] = true
		pc.subIntervals[sid].state = invalidState
	}
	for _, si := range pc.subIntervals {
		if si.hasPred && owning[si.pred] {
			si.dirty = true
		}
	}
	delete(pc.byNode, node.id)

	// node may still be sitting in the pending queue if it was added and
	// removed within the same batch before ever being materialized.
	filtered := pc.pendingNodes[:0]
	for _, n := range pc.pendingNodes {
		if n.id != node.id {
			filtered = append(filtered, n)
		}
	}
	pc.pendingNodes = filtered
}

func (pc *MemoContigCaller) processPending(frontier Pos) {
	i := 0
	for i < len(pc.pendingNodes) && pc.pendingNodes[i].FirstStart <= frontier {
		pc.materialize(pc.pendingNodes[i])
		i++
	}
	pc.pendingNodes = pc.pendingNodes[i:]
}

// predCandidate is one predecessor sub-interval considered while
// partitioning a node's first-position interval: si is the resolved,
// live predecessor sub-interval, and [start,end] is the sub-range of the
// successor's own interval over which that predecessor actually reaches
// (i.e. the predecessor's last k-mer could end at start-1 .. end-1).
type predCandidate struct {
	si         *subInterval
	start, end Pos
}

// betterCandidate reports whether a has strictly higher priority than b
// for winning a partition piece: higher score first, then the documented
// tie-break (ascending firstKmer, then ascending node id).
func betterCandidate(a, b *subInterval) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.firstKmer != b.firstKmer {
		return a.firstKmer < b.firstKmer
	}
	return a.node < b.node
}

// predecessorCandidates resolves every live predecessor sub-interval of n
// and computes, for each, the sub-range of n's own [FirstStart,FirstEnd]
// interval it can actually support: a predecessor p supports successor
// offset o only if p's own trailing-kmer position could sit at o-1, i.e.
// o-1 falls in [p.LastStart, p.LastEnd]. Every resolved non-invalid
// candidate has hasKnownSuccessor set, whether or not it ends up winning
// any partition piece, since n's existence alone proves it is not a dead
// end.
func (pc *MemoContigCaller) predecessorCandidates(n *PositionalKmerNode) []predCandidate {
	var cands []predCandidate
	for pid := range n.Prev {
		p, ok := pc.index.get(pid)
		if !ok {
			continue
		}
		for _, sid := range pc.byNode[pid] {
			cand := pc.resolve(pc.subIntervals[sid])
			if cand.state == invalidState {
				continue
			}
			cand.hasKnownSuccessor = true
			start := maxPos(n.FirstStart, p.LastStart()+1)
			end := minPos(n.FirstEnd, p.LastEnd()+1)
			if start > end {
				continue
			}
			cands = append(cands, predCandidate{si: cand, start: start, end: end})
		}
	}
	return cands
}

// bestPredecessorFor returns the highest-priority candidate whose support
// range fully covers [start,end], or nil if none does. Used by resolve to
// recompute an existing partition piece's winner without re-deriving the
// piece's own boundaries.
func bestPredecessorFor(cands []predCandidate, start, end Pos) *subInterval {
	var best *subInterval
	for _, c := range cands {
		if c.start > start || end > c.end {
			continue
		}
		if best == nil || betterCandidate(c.si, best) {
			best = c.si
		}
	}
	return best
}

// partitionPiece is one contiguous sub-range of a node's first-position
// interval with a constant winning predecessor (nil meaning none).
type partitionPiece struct {
	start, end Pos
	best       *subInterval
}

// partitionByPredecessor implements spec §4.4's partition operation: it
// divides [lo,hi] into the coarsest set of contiguous pieces such that the
// highest-priority covering candidate is constant across each piece.
func partitionByPredecessor(lo, hi Pos, cands []predCandidate) []partitionPiece {
	boundSet := map[Pos]bool{lo: true, hi + 1: true}
	for _, c := range cands {
		if c.start > lo {
			boundSet[c.start] = true
		}
		if c.end+1 <= hi {
			boundSet[c.end+1] = true
		}
	}
	bounds := make([]Pos, 0, len(boundSet))
	for b := range boundSet {
		bounds = append(bounds, b)
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i] < bounds[j] })

	var pieces []partitionPiece
	for i := 0; i+1 < len(bounds); i++ {
		segStart, segEnd := bounds[i], bounds[i+1]-1
		best := bestPredecessorFor(cands, segStart, segEnd)
		if len(pieces) > 0 && pieces[len(pieces)-1].best == best {
			pieces[len(pieces)-1].end = segEnd
			continue
		}
		pieces = append(pieces, partitionPiece{start: segStart, end: segEnd, best: best})
	}
	return pieces
}

func (pc *MemoContigCaller) materialize(n *PositionalKmerNode) {
	cands := pc.predecessorCandidates(n)
	for _, piece := range partitionByPredecessor(n.FirstStart, n.FirstEnd, cands) {
		pc.nextID++
		si := &subInterval{
			id:        pc.nextID,
			node:      n.id,
			firstKmer: n.firstKmer(),
			start:     piece.start,
			end:       piece.end,
			state:     liveState,
		}
		pc.applyScore(si, n, piece.best)

		pc.subIntervals[si.id] = si
		pc.byNode[n.id] = append(pc.byNode[n.id], si.id)
		heap.Push(pc.callable, si.id)
	}
}

// applyScore computes si's score/anchored/predecessor fields given the
// node it covers and the (already resolved) best predecessor sub-interval,
// if any. length is the width of si's own partition piece, not
// necessarily the whole node's interval.
func (pc *MemoContigCaller) applyScore(si *subInterval, n *PositionalKmerNode, best *subInterval) {
	weightSum := 0
	for _, w := range n.Weights {
		weightSum += w
	}
	length := int64(si.end-si.start) + 1

	var predScore int64
	anchoredBefore := false
	if best != nil {
		predScore = best.score
		anchoredBefore = best.anchored
		si.hasPred = true
		si.pred = best.id
	} else {
		si.hasPred = false
	}

	anchored := n.IsReference || anchoredBefore
	score := int64(weightSum)*length + predScore
	if anchored && !anchoredBefore {
		score += anchoredScoreBonus
	}
	si.score = score
	si.anchored = anchored
}

// resolve brings a possibly-dirty sub-interval up to date, recursively
// resolving its ancestors first, and propagates dirtiness forward to any
// sub-interval that had chosen it as a predecessor.
func (pc *MemoContigCaller) resolve(si *subInterval) *subInterval {
	if !si.dirty {
		return si
	}
	n, ok := pc.index.get(si.node)
	if !ok {
		si.state = invalidState
		si.dirty = false
		return si
	}
	// si's own [start,end] is a fixed partition-piece boundary chosen when
	// it was first materialized; recomputing it only needs the winner
	// among candidates that still fully cover that piece, not a fresh
	// re-partition of the whole node.
	cands := pc.predecessorCandidates(n)
	best := bestPredecessorFor(cands, si.start, si.end)
	pc.applyScore(si, n, best)
	si.dirty = false
	for _, other := range pc.subIntervals {
		if other.hasPred && other.pred == si.id {
			other.dirty = true
		}
	}
	return si
}

// bestContig returns the best-scoring anchored path guaranteed complete at
// frontier — one that no node with firstStart < frontier could still
// extend — or ok=false if none exists yet.
func (pc *MemoContigCaller) bestContig(frontier Pos) (path []*PositionalKmerNode, ok bool) {
	pc.processPending(frontier)
	for pc.callable.Len() > 0 {
		sid := pc.callable.items[0]
		si := pc.resolve(pc.subIntervals[sid])
		if si.state != liveState || si.hasKnownSuccessor {
			heap.Pop(pc.callable)
			continue
		}
		heap.Pop(pc.callable)
		si.state = consumedState
		return pc.backtrace(si), true
	}
	return nil, false
}

// callBestContigBefore force-calls the best live path whose last node ends
// before positionBound, regardless of whether it is guaranteed complete.
// It is the Assembler's safety valve for bounding loaded-graph width.
func (pc *MemoContigCaller) callBestContigBefore(frontier Pos, positionBound Pos) (path []*PositionalKmerNode, ok bool) {
	pc.processPending(frontier)
	var best *subInterval
	for _, si := range pc.subIntervals {
		if si.state != liveState {
			continue
		}
		si = pc.resolve(si)
		if si.state != liveState {
			continue
		}
		n, ok := pc.index.get(si.node)
		if !ok || n.LastEnd() >= positionBound {
			continue
		}
		if best == nil || si.score > best.score ||
			(si.score == best.score && si.firstKmer < best.firstKmer) ||
			(si.score == best.score && si.firstKmer == best.firstKmer && si.node < best.node) {
			best = si
		}
	}
	if best == nil {
		return nil, false
	}
	best.state = consumedState
	return pc.backtrace(best), true
}

func (pc *MemoContigCaller) backtrace(si *subInterval) []*PositionalKmerNode {
	var chain []*PositionalKmerNode
	for {
		n, ok := pc.index.get(si.node)
		if !ok {
			log.Error.Printf("contigcaller: backtrace hit a node no longer in the index (id=%d)", si.node)
			break
		}
		chain = append(chain, n)
		if !si.hasPred {
			break
		}
		pred, ok := pc.subIntervals[si.pred]
		if !ok || pred.state == invalidState {
			break
		}
		si = pc.resolve(pred)
	}
	// chain was built tail-to-head; reverse it.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// frontierStart returns the start position of the earliest node still
// pending materialization, or the index's firstStart if nothing is
// pending. It is a diagnostic query; the Assembler does not call it.
func (pc *MemoContigCaller) frontierStart() Pos {
	if len(pc.pendingNodes) > 0 {
		return pc.pendingNodes[0].FirstStart
	}
	return pc.index.firstStart()
}

// frontierPath returns the backtrace chain for the highest-scoring live
// sub-interval whose node's FirstStart lies in [lookbackFloor, frontier],
// used by MisassemblyFixer-adjacent diagnostics. It does not consume
// anything.
func (pc *MemoContigCaller) frontierPath(frontier, lookbackFloor Pos) []*PositionalKmerNode {
	var best *subInterval
	for _, si := range pc.subIntervals {
		if si.state != liveState {
			continue
		}
		n, ok := pc.index.get(si.node)
		if !ok || n.FirstStart < lookbackFloor || n.FirstStart > frontier {
			continue
		}
		if best == nil || si.score > best.score {
			best = si
		}
	}
	if best == nil {
		return nil
	}
	return pc.backtrace(best)
}

// CallerStateSnapshot is the payload delivered to Opts.CallerStateSink.
type CallerStateSnapshot struct {
	LiveSubIntervals int
	PendingNodes     int
	TopScore         int64
}

// exportState sends a snapshot of the frontier to sink, if configured.
func (pc *MemoContigCaller) exportState(sink func(CallerStateSnapshot)) {
	if sink == nil {
		return
	}
	var top int64
	live := 0
	for _, si := range pc.subIntervals {
		if si.state == liveState {
			live++
			if si.score > top {
				top = si.score
			}
		}
	}
	sink(CallerStateSnapshot{
		LiveSubIntervals: live,
		PendingNodes:     len(pc.pendingNodes),
		TopScore:         top,
	})
}

// fingerprint computes a highwayhash digest of the current callable set
// (node id + score pairs, sorted by node id), used by the debug self-check
// to compare two callers cheaply instead of a deep structural diff.
func (pc *MemoContigCaller) fingerprint() [highwayhash.Size]byte {
	type entry struct {
		node  NodeID
		score int64
	}
	var entries []entry
	for _, si := range pc.subIntervals {
		if si.state == liveState && !si.hasKnownSuccessor {
			entries = append(entries, entry{si.node, si.score})
		}
	}
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].node > entries[j].node; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
	var buf []byte
	var tmp [8]byte
	for _, e := range entries {
		binary.LittleEndian.PutUint64(tmp[:], uint64(e.node))
		buf = append(buf, tmp[:]...)
		binary.LittleEndian.PutUint64(tmp[:], uint64(e.score))
		buf = append(buf, tmp[:]...)
	}
	var zeroSeed [highwayhash.Size]byte
	return highwayhash.Sum(buf, zeroSeed[:])
}

// selfCheck rebuilds a fresh caller from the current live node set and
// compares its callable-set fingerprint against pc's, raising
// InvariantViolation on mismatch. It is expensive (replays every live
// node) and is intended for Opts.EnableSanityChecks debug runs only.
func (pc *MemoContigCaller) selfCheck(frontier Pos) error {
	fresh := newMemoContigCaller(pc.index, pc.opts)
	for _, n := range pc.index.byPosition {
		fresh.add(n)
	}
	fresh.processPending(frontier)
	pc.processPending(frontier)
	want := fresh.fingerprint()
	got := pc.fingerprint()
	if want != got {
		return newError(InvariantViolation, "memoization self-check mismatch at frontier %d", frontier)
	}
	return nil
}

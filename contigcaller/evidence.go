package contigcaller

// KmerSupportNode is derived from one piece of evidence: it records that
// EvidenceID contributes Weight to the occurrence of Kmer somewhere in
// [LastStart, LastEnd]. It is created when evidence is ingested and
// destroyed only when EvidenceTracker.untrack retires its evidence id.
type KmerSupportNode struct {
	Kmer               Kmer
	LastStart, LastEnd Pos
	Weight             int
	EvidenceID         EvidenceID
}

func (s *KmerSupportNode) overlaps(pos Pos) bool {
	return s.LastStart <= pos && pos <= s.LastEnd
}

// OffsetSupport decomposes a PositionalKmerNode's per-offset weight into
// one evidence id's contribution, so the Assembler can track/untrack it
// individually as the node enters and leaves the graph.
type OffsetSupport struct {
	EvidenceID EvidenceID
	Weight     int
}

// calledOffset names one (k-mer, position) pair along a called path, the
// unit EvidenceTracker.untrack uses to find overlapping support.
type calledOffset struct {
	Kmer Kmer
	Pos  Pos
}

// EvidenceTracker maps evidence ids to the k-mer support nodes they
// currently contribute, and k-mers to the support nodes that mention them,
// so a called contig's path can be turned back into the evidence that
// produced it.
type EvidenceTracker struct {
	byEvidence map[EvidenceID]map[*KmerSupportNode]struct{}
	byKmer     map[Kmer][]*KmerSupportNode
}

func newEvidenceTracker() *EvidenceTracker {
	return &EvidenceTracker{
		byEvidence: make(map[EvidenceID]map[*KmerSupportNode]struct{}),
		byKmer:     make(map[Kmer][]*KmerSupportNode),
	}
}

// track records a new support node under its evidence id and k-mer key.
func (t *EvidenceTracker) track(s *KmerSupportNode) {
	set, ok := t.byEvidence[s.EvidenceID]
	if !ok {
		set = make(map[*KmerSupportNode]struct{})
		t.byEvidence[s.EvidenceID] = set
	}
	set[s] = struct{}{}
	t.byKmer[s.Kmer] = append(t.byKmer[s.Kmer], s)
}

// untrack gathers every evidence id whose support overlaps one of the given
// called offsets, retires those ids entirely, and returns the set. An empty
// input yields the empty set. Retiring an already-retired id a second time
// (e.g. because two offsets map to the same evidence) is a no-op for that
// id, so the operation as a whole is idempotent per id.
//
// matched[i] lists the support nodes found overlapping offsets[i], letting
// the caller attribute retired weight back to the specific node/offset it
// came from (WeightSplitter operates per node, not per whole path).
func (t *EvidenceTracker) untrack(offsets []calledOffset) (retired map[EvidenceID]struct{}, matched [][]*KmerSupportNode) {
	retired = make(map[EvidenceID]struct{})
	matched = make([][]*KmerSupportNode, len(offsets))
	for i, off := range offsets {
		var hits []*KmerSupportNode
		for _, s := range t.byKmer[off.Kmer] {
			if s.overlaps(off.Pos) {
				hits = append(hits, s)
				retired[s.EvidenceID] = struct{}{}
			}
		}
		matched[i] = hits
	}
	for id := range retired {
		t.retire(id)
	}
	return retired, matched
}

// retire removes every support node owned by id. It is a no-op if id is not
// currently tracked.
func (t *EvidenceTracker) retire(id EvidenceID) {
	set, ok := t.byEvidence[id]
	if !ok {
		return
	}
	for s := range set {
		t.removeFromKmerIndex(s)
	}
	delete(t.byEvidence, id)
}

func (t *EvidenceTracker) removeFromKmerIndex(s *KmerSupportNode) {
	list := t.byKmer[s.Kmer]
	for i, cand := range list {
		if cand == s {
			list[i] = list[len(list)-1]
			t.byKmer[s.Kmer] = list[:len(list)-1]
			break
		}
	}
	if len(t.byKmer[s.Kmer]) == 0 {
		delete(t.byKmer, s.Kmer)
	}
}

// support returns a read-only view of the support nodes backing the given
// evidence ids, used by MisassemblyFixer to re-place evidence among
// repeated k-mer offsets.
func (t *EvidenceTracker) support(ids map[EvidenceID]struct{}) map[EvidenceID][]*KmerSupportNode {
	out := make(map[EvidenceID][]*KmerSupportNode, len(ids))
	for id := range ids {
		set := t.byEvidence[id]
		list := make([]*KmerSupportNode, 0, len(set))
		for s := range set {
			list = append(list, s)
		}
		out[id] = list
	}
	return out
}

// tracked reports whether id currently has any tracked support.
func (t *EvidenceTracker) tracked(id EvidenceID) bool {
	_, ok := t.byEvidence[id]
	return ok
}

package contigcaller

// NodeID identifies a PositionalKmerNode within a single Assembler run. Ids
// are assigned monotonically by the node arena and never reused, so
// adjacency and back-references can compare ids instead of chasing
// pointers through a cyclic graph.
type NodeID int64

// EvidenceID identifies a piece of input evidence (typically a read or read
// pair). It is opaque to this package beyond equality.
type EvidenceID int64

// PositionalKmerNode is a path of L>=1 k-mers sharing one positional
// interval: the first k-mer may occur anywhere in [FirstStart, FirstEnd],
// and the node's weights are indexed the same way as Kmers. It is
// immutable once placed in the index; WeightSplitter produces replacement
// nodes with fresh ids rather than mutating one in place.
type PositionalKmerNode struct {
	id NodeID

	Kmers   []Kmer
	Weights []int

	FirstStart, FirstEnd Pos
	IsReference          bool

	// CollapsedKmers are alternate k-mers, at the same offsets as Kmers,
	// that were merged into this node during upstream bubble collapse.
	// nil if none.
	CollapsedKmers map[int][]Kmer

	// SupportByOffset[i] decomposes Weights[i] into the individual
	// evidence contributions backing it. len(SupportByOffset[i]) == 0 is
	// allowed (e.g. a collapsed/reference node with no direct evidence);
	// sum of the Weight fields should equal Weights[i].
	SupportByOffset [][]OffsetSupport

	// Prev/Next are relation-only adjacency sets: positional-overlap plus
	// k-mer-successor links to neighbouring nodes. They carry no
	// ownership; the PathNodeIndex is the sole owner of live nodes.
	Prev, Next map[NodeID]struct{}
}

// ID returns the node's arena identity.
func (n *PositionalKmerNode) ID() NodeID { return n.id }

// Len is the number of k-mers (and weights) in the node.
func (n *PositionalKmerNode) Len() int { return len(n.Kmers) }

// LastStart is the position at which the node's final k-mer starts, given
// its first k-mer starts at FirstStart.
func (n *PositionalKmerNode) LastStart() Pos { return n.FirstStart + Pos(n.Len()-1) }

// LastEnd is the position at which the node's final k-mer starts, given its
// first k-mer starts at FirstEnd.
func (n *PositionalKmerNode) LastEnd() Pos { return n.FirstEnd + Pos(n.Len()-1) }

// firstKmer is the node's leading k-mer, used as the secondary sort key in
// PathNodeIndex.byPosition and as the tie-break key for equally-scored
// sub-intervals.
func (n *PositionalKmerNode) firstKmer() Kmer { return n.Kmers[0] }

// kmerAt returns every k-mer (primary plus collapsed alternates) that
// occupies offset i.
func (n *PositionalKmerNode) kmerAt(i int) []Kmer {
	ks := make([]Kmer, 0, 1+len(n.CollapsedKmers[i]))
	ks = append(ks, n.Kmers[i])
	ks = append(ks, n.CollapsedKmers[i]...)
	return ks
}

// nodeArena assigns fresh NodeIDs. It keeps no reference to the nodes it
// numbers and does not itself enforce liveness; PathNodeIndex holds the
// live nodes.
type nodeArena struct {
	nextID NodeID
}

func (a *nodeArena) alloc(n *PositionalKmerNode) *PositionalKmerNode {
	a.nextID++
	n.id = a.nextID
	return n
}

// hasKmerRepeat reports whether the same k-mer (including collapsed
// alternates) occurs at more than one offset across the concatenation of
// the given path.
func hasKmerRepeat(path []*PositionalKmerNode) (Kmer, bool) {
	seen := make(map[Kmer]struct{})
	for _, n := range path {
		for i := range n.Kmers {
			for _, k := range n.kmerAt(i) {
				if _, ok := seen[k]; ok {
					return k, true
				}
				seen[k] = struct{}{}
			}
		}
	}
	return 0, false
}

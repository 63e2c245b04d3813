package contigcaller

import (
	"sort"

	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/contigcaller/circular"
	"github.com/grailbio/contigcaller/interval"
)

// kmerOccurrence is one (node, offset) pair contributing a k-mer, as
// returned by PathNodeIndex.lookup.
type kmerOccurrence struct {
	node   *PositionalKmerNode
	offset int
}

// kmerShard is one shard of the byKmer index: an ordinary Go map, since
// unlike the teacher's static built-once gene index this one needs live
// add/remove.
type kmerShard struct {
	occ map[Kmer][]kmerOccurrence
}

// shardedKmerIndex hashes k-mers with the teacher's farm.Hash64WithSeed
// idiom (hashing the kmer value itself as the seed against a nil byte
// slice, as in fusion/kmer_index.go) to pick a shard, sized to the next
// power of two via circular.NextExp2 the same way the teacher sizes its
// circular buffers.
type shardedKmerIndex struct {
	shards []kmerShard
	mask   uint64
}

func newShardedKmerIndex(expectedKmers int) *shardedKmerIndex {
	n := 2
	if expectedKmers > 1 {
		n = circular.NextExp2(expectedKmers / 4)
	}
	shards := make([]kmerShard, n)
	for i := range shards {
		shards[i].occ = make(map[Kmer][]kmerOccurrence)
	}
	return &shardedKmerIndex{shards: shards, mask: uint64(n - 1)}
}

func (idx *shardedKmerIndex) shardFor(k Kmer) *kmerShard {
	h := farm.Hash64WithSeed(nil, uint64(k))
	return &idx.shards[h&idx.mask]
}

func (idx *shardedKmerIndex) add(k Kmer, occ kmerOccurrence) {
	s := idx.shardFor(k)
	s.occ[k] = append(s.occ[k], occ)
}

func (idx *shardedKmerIndex) remove(k Kmer, node *PositionalKmerNode, offset int) {
	s := idx.shardFor(k)
	list := s.occ[k]
	for i, o := range list {
		if o.node.id == node.id && o.offset == offset {
			list[i] = list[len(list)-1]
			s.occ[k] = list[:len(list)-1]
			break
		}
	}
	if len(s.occ[k]) == 0 {
		delete(s.occ, k)
	}
}

func (idx *shardedKmerIndex) lookup(k Kmer) []kmerOccurrence {
	return idx.shardFor(k).occ[k]
}

// PathNodeIndex is the sole owner of live PositionalKmerNodes: a dual index
// by (firstStart, firstKmer, id) for ordered position scans and by k-mer
// (primary plus collapsed) for successor/overlap lookups.
type PathNodeIndex struct {
	byPosition []*PositionalKmerNode
	byFirstKmer map[Kmer][]*PositionalKmerNode
	byKmer     *shardedKmerIndex
	byID       map[NodeID]*PositionalKmerNode
}

func newPathNodeIndex() *PathNodeIndex {
	return &PathNodeIndex{
		byFirstKmer: make(map[Kmer][]*PositionalKmerNode),
		byKmer:      newShardedKmerIndex(1024),
		byID:        make(map[NodeID]*PositionalKmerNode),
	}
}

func lessNode(a, b *PositionalKmerNode) bool {
	if a.FirstStart != b.FirstStart {
		return a.FirstStart < b.FirstStart
	}
	if a.firstKmer() != b.firstKmer() {
		return a.firstKmer() < b.firstKmer()
	}
	return a.id < b.id
}

func (idx *PathNodeIndex) searchInsertionPoint(n *PositionalKmerNode) int {
	return sort.Search(len(idx.byPosition), func(i int) bool {
		return !lessNode(idx.byPosition[i], n)
	})
}

// add inserts node into both indexes. It fails with InvariantViolation if
// node's first-position interval is not disjoint from every other live
// node sharing the same firstKmer.
func (idx *PathNodeIndex) add(n *PositionalKmerNode) error {
	fk := n.firstKmer()
	nodeRange := newPosRange(n.FirstStart, n.FirstEnd)
	for _, other := range idx.byFirstKmer[fk] {
		if nodeRange.Overlaps(newPosRange(other.FirstStart, other.FirstEnd)) {
			return newError(InvariantViolation,
				"node %d and node %d share firstKmer %d with overlapping intervals [%d,%d] and [%d,%d]",
				n.id, other.id, fk, n.FirstStart, n.FirstEnd, other.FirstStart, other.FirstEnd)
		}
	}

	i := idx.searchInsertionPoint(n)
	idx.byPosition = append(idx.byPosition, nil)
	copy(idx.byPosition[i+1:], idx.byPosition[i:])
	idx.byPosition[i] = n

	idx.byFirstKmer[fk] = append(idx.byFirstKmer[fk], n)
	idx.byID[n.id] = n

	for i, k := range n.Kmers {
		idx.byKmer.add(k, kmerOccurrence{node: n, offset: i})
		for _, ck := range n.CollapsedKmers[i] {
			idx.byKmer.add(ck, kmerOccurrence{node: n, offset: i})
		}
	}
	return nil
}

// remove deletes node from both indexes. It is a no-op if node is not
// currently indexed.
func (idx *PathNodeIndex) remove(n *PositionalKmerNode) {
	if _, ok := idx.byID[n.id]; !ok {
		return
	}
	i := idx.searchInsertionPoint(n)
	for i < len(idx.byPosition) && idx.byPosition[i].id != n.id {
		i++
	}
	if i < len(idx.byPosition) {
		idx.byPosition = append(idx.byPosition[:i], idx.byPosition[i+1:]...)
	}

	fk := n.firstKmer()
	list := idx.byFirstKmer[fk]
	for j, other := range list {
		if other.id == n.id {
			list[j] = list[len(list)-1]
			idx.byFirstKmer[fk] = list[:len(list)-1]
			break
		}
	}
	if len(idx.byFirstKmer[fk]) == 0 {
		delete(idx.byFirstKmer, fk)
	}

	for i, k := range n.Kmers {
		idx.byKmer.remove(k, n, i)
		for _, ck := range n.CollapsedKmers[i] {
			idx.byKmer.remove(ck, n, i)
		}
	}
	delete(idx.byID, n.id)
}

// lookup returns every (node, offset) occurrence of k-mer k among live
// nodes.
func (idx *PathNodeIndex) lookup(k Kmer) []kmerOccurrence {
	return idx.byKmer.lookup(k)
}

// firstStart returns the start position of the earliest live node, or
// posInfinity if the index is empty.
func (idx *PathNodeIndex) firstStart() Pos {
	if len(idx.byPosition) == 0 {
		return posInfinity
	}
	return idx.byPosition[0].FirstStart
}

// get returns the live node with the given id, if any.
func (idx *PathNodeIndex) get(id NodeID) (*PositionalKmerNode, bool) {
	n, ok := idx.byID[id]
	return n, ok
}

// nodesBefore returns every live node with FirstStart <= bound, in
// ascending (firstStart, firstKmer, id) order.
func (idx *PathNodeIndex) nodesBefore(bound Pos) []*PositionalKmerNode {
	i := sort.Search(len(idx.byPosition), func(i int) bool {
		return idx.byPosition[i].FirstStart > bound
	})
	return idx.byPosition[:i]
}

// len reports the number of live nodes.
func (idx *PathNodeIndex) len() int { return len(idx.byPosition) }

// coveredEndpoints merges every live node's [FirstStart, LastEnd] span
// into a sorted interval-union endpoint list, in the representation
// interval.UnionScanner expects: a sorted sequence alternating
// union-start, union-end, union-start, union-end, ....
func (idx *PathNodeIndex) coveredEndpoints() []interval.PosType {
	if len(idx.byPosition) == 0 {
		return nil
	}
	type span struct{ start, end interval.PosType }
	spans := make([]span, len(idx.byPosition))
	for i, n := range idx.byPosition {
		spans[i] = span{interval.PosType(n.FirstStart), interval.PosType(n.LastEnd()) + 1}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	endpoints := make([]interval.PosType, 0, 2*len(spans))
	cur := spans[0]
	for _, s := range spans[1:] {
		if s.start > cur.end {
			endpoints = append(endpoints, cur.start, cur.end)
			cur = s
			continue
		}
		if s.end > cur.end {
			cur.end = s.end
		}
	}
	endpoints = append(endpoints, cur.start, cur.end)
	return endpoints
}

// coveredBases sums the total base-pair width of the live graph's
// interval union, walked with interval.UnionScanner the way the teacher's
// BED/BAM tooling walks interval unions.
func (idx *PathNodeIndex) coveredBases() int {
	endpoints := idx.coveredEndpoints()
	if len(endpoints) == 0 {
		return 0
	}
	us := interval.NewUnionScanner(endpoints)
	var start, end interval.PosType
	total := 0
	for us.Scan(&start, &end, interval.PosTypeMax) {
		total += int(end - start)
	}
	return total
}

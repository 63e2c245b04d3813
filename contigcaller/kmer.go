package contigcaller

import (
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/simd"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/contigcaller/biosimd"
)

const (
	invalidKmerBits = uint8(255)
)

var (
	asciiToKmerMap                  [256]uint8
	asciiToReverseComplementKmerMap [256]uint8
)

func init() {
	for i := range asciiToKmerMap {
		asciiToKmerMap[i] = invalidKmerBits
		asciiToReverseComplementKmerMap[i] = invalidKmerBits
	}
	asciiToKmerMap['A'] = 0
	asciiToKmerMap['a'] = 0
	asciiToKmerMap['C'] = 1
	asciiToKmerMap['c'] = 1
	asciiToKmerMap['G'] = 2
	asciiToKmerMap['g'] = 2
	asciiToKmerMap['T'] = 3
	asciiToKmerMap['t'] = 3

	asciiToReverseComplementKmerMap['A'] = 3
	asciiToReverseComplementKmerMap['a'] = 3
	asciiToReverseComplementKmerMap['C'] = 2
	asciiToReverseComplementKmerMap['c'] = 2
	asciiToReverseComplementKmerMap['G'] = 1
	asciiToReverseComplementKmerMap['g'] = 1
	asciiToReverseComplementKmerMap['T'] = 0
	asciiToReverseComplementKmerMap['t'] = 0
}

// Kmer is a 2-bit-per-base encoding of a sequence of ACGT, up to 32 bases.
type Kmer uint64

// invalidKmer is a sentinel kmer value, never produced by asciiToKmer for a
// clean sequence.
const invalidKmer = Kmer(0xffffffffffffffff)

// kmersAtPos is the forward and reverse-complement encoding of the
// k-length window starting at Pos.
type kmersAtPos struct {
	pos                        Pos
	forward, reverseComplement Kmer
}

// minKmer is the canonical strand-independent encoding: the smaller of the
// forward and reverse-complement kmers.
func (km kmersAtPos) minKmer() Kmer {
	if km.forward < km.reverseComplement {
		return km.forward
	}
	return km.reverseComplement
}

// kmerizer scans a sequence, producing the forward and reverse-complement
// kmer at every position, incrementally where possible.
type kmerizer struct {
	kmerLength int
	tmpSeq     []byte
	mask       Kmer // ^(~0 << (2*kmerLength)): the low 2*kmerLength bits

	seq string
	si  int
	cur kmersAtPos
}

func newKmerizer(kmerLength int) *kmerizer {
	return &kmerizer{
		kmerLength: kmerLength,
		mask:       ^(Kmer(0xffffffffffffffff) << Kmer(kmerLength*2 /*2==#bits per base*/)),
	}
}

// ParseKmer packs an ASCII base sequence into a Kmer, for callers building
// PositionalKmerNode values outside this package. ok is false if seq
// contains a base other than A/C/G/T.
func ParseKmer(seq string) (k Kmer, ok bool) {
	k = asciiToKmer(seq)
	return k, k != invalidKmer
}

func asciiToKmer(seq string) Kmer {
	var k Kmer
	for _, ch := range []byte(seq) {
		b := asciiToKmerMap[ch]
		if b == invalidKmerBits {
			return invalidKmer
		}
		k = (k << 2) | Kmer(b)
	}
	return k
}

func nextAmbiguousPosition(seq string, si int) int {
	for i := si; si < len(seq); i++ {
		if asciiToKmerMap[seq[i]] == invalidKmerBits {
			return i
		}
	}
	return len(seq)
}

func (k *kmerizer) Reset(seq string) {
	k.seq = seq
	k.si = 0
}

func (k *kmerizer) Scan() bool {
	if k.si > 0 /*k.cur is set*/ && k.si+k.kmerLength <= len(k.seq) {
		nextCh := k.seq[k.si+k.kmerLength-1]
		if bits := asciiToKmerMap[nextCh]; bits != invalidKmerBits {
			// Fast path: shift the previous encoding by one base instead of
			// recomputing the whole window.
			k.cur.pos = Pos(k.si)
			k.cur.forward = ((k.cur.forward << 2) | Kmer(bits)) & k.mask
			shift := (Kmer(k.kmerLength) - 1) * 2
			k.cur.reverseComplement = (k.cur.reverseComplement >> 2) | (Kmer(asciiToReverseComplementKmerMap[nextCh]) << shift)
			k.si++
			return true
		}
		// Fall through to the slow path below.
	}

	for k.si+k.kmerLength <= len(k.seq) {
		forwardStr := k.seq[k.si : k.si+k.kmerLength]
		var forwardKmer, reverseKmer Kmer
		if forwardKmer = asciiToKmer(forwardStr); forwardKmer == invalidKmer {
			k.si = nextAmbiguousPosition(k.seq, k.si) + 1
			continue
		}
		simd.ResizeUnsafe(&k.tmpSeq, k.kmerLength)
		biosimd.ReverseComp8NoValidate(k.tmpSeq, gunsafe.StringToBytes(forwardStr))
		if reverseKmer = asciiToKmer(gunsafe.BytesToString(k.tmpSeq)); reverseKmer == invalidKmer {
			log.Panicf("reverse complement of a clean sequence produced an ambiguous kmer")
		}
		k.cur = kmersAtPos{pos: Pos(k.si), forward: forwardKmer, reverseComplement: reverseKmer}
		k.si++
		return true
	}
	return false
}

func (k *kmerizer) Get() kmersAtPos { return k.cur }

package contigcaller

import (
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/contigcaller/biosimd"
)

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func max(x, y int) int {
	if x > y {
		return x
	}
	return y
}

func min(x, y int) int {
	if x < y {
		return x
	}
	return y
}

// reverseComplement computes the reverse complement of a DNA string.
func reverseComplement(seq string) string {
	buf := make([]byte, len(seq))
	biosimd.ReverseComp8NoValidate(buf, gunsafe.StringToBytes(seq))
	return gunsafe.BytesToString(buf)
}

// acgtnIndex maps A, C, G, T to {0,1,2,3}; all other letters map to 4.
var acgtnIndex [256]uint8

func init() {
	for i := range acgtnIndex {
		acgtnIndex[i] = 4
	}
	acgtnIndex['a'] = 0
	acgtnIndex['A'] = 0
	acgtnIndex['c'] = 1
	acgtnIndex['C'] = 1
	acgtnIndex['g'] = 2
	acgtnIndex['G'] = 2
	acgtnIndex['t'] = 3
	acgtnIndex['T'] = 3
}

// kmerToBases decodes a 2-bit-packed Kmer of the given length back into an
// ACGT byte string, most significant base first.
func kmerToBases(k Kmer, length int) []byte {
	const bases = "ACGT"
	out := make([]byte, length)
	for i := length - 1; i >= 0; i-- {
		out[i] = bases[k&3]
		k >>= 2
	}
	return out
}

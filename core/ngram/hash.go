package ngram

// HashName identifies the hash algorithm in persisted models. Changing Hash
// requires a new name, since every stored model depends on its collisions.
const HashName = "js32"

// hashSeed is the initial state of the JS hash.
const hashSeed uint32 = 1315423911

// Hash returns the 32-bit JS hash of gram:
//
//	h = 1315423911
//	for each byte b: h ^= (h << 5) + b + (h >> 2)
//
// All arithmetic wraps at 32 bits.
func Hash(gram []byte) uint32 {
	h := hashSeed
	for _, b := range gram {
		h ^= (h << 5) + uint32(b) + (h >> 2)
	}
	return h
}

// Slot reduces a hash to a table index. tableSize must be a power of two.
func Slot(h uint32, tableSize int) int {
	return int(h & uint32(tableSize-1))
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

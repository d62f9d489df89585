package detector

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

const (
	keyPrefix      = "sabir"
	keySeparator   = ":"
	truncateLength = 32
)

// KeyGenerator builds cache keys for documents. Keys are exact: documents
// differing in a single byte never share a key.
type KeyGenerator struct {
	prefix    string
	namespace string
}

// NewKeyGenerator creates a KeyGenerator with the given namespace.
func NewKeyGenerator(namespace string) *KeyGenerator {
	return &KeyGenerator{
		prefix:    keyPrefix,
		namespace: namespace,
	}
}

// Generate returns the key of doc for the given model generation. traced
// separates results that carry a trace from those that do not.
func (kg *KeyGenerator) Generate(generation uint64, traced bool, doc []byte) string {
	parts := []string{kg.prefix}
	if kg.namespace != "" {
		parts = append(parts, kg.namespace)
	}

	mode := "d"
	if traced {
		mode = "t"
	}
	parts = append(parts, strconv.FormatUint(generation, 10), mode, hashDocument(doc))

	return strings.Join(parts, keySeparator)
}

func hashDocument(doc []byte) string {
	h := sha256.Sum256(doc)
	return hex.EncodeToString(h[:])[:truncateLength]
}

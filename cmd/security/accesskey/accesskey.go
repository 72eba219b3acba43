package accesskey

import (
	"math/rand/v2"
	"strings"
)

// Alphabet is the output alphabet. Every key symbol is drawn uniformly from it.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Groups are the lengths of the dash-separated groups, in order.
var Groups = [...]int{8, 4, 4, 10, 2}

// Len is the total length of a key including separators. It must equal the
// sum of Groups plus one separator between each pair of groups.
const Len = 8 + 4 + 4 + 10 + 2 + len(Groups) - 1

// Source produces uniformly distributed integers in [0, n).
// *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	IntN(n int) int
}

// globalSource is the process-wide runtime-seeded source.
type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// Generator produces access keys from an injected Source.
// A Generator is safe for concurrent use if its Source is.
type Generator struct {
	src Source
}

// NewGenerator returns a Generator drawing from src.
// A nil src selects the process-wide source, which is safe for concurrent use.
func NewGenerator(src Source) *Generator {
	if src == nil {
		src = globalSource{}
	}
	return &Generator{src: src}
}

var defaultGenerator = NewGenerator(nil)

// Generate returns a new key from the process-wide source.
func Generate() string { return defaultGenerator.Generate() }

// Generate returns a new key. It never fails.
func (g *Generator) Generate() string {
	var b strings.Builder
	b.Grow(Len)

	for i, n := range Groups {
		if i > 0 {
			b.WriteByte('-')
		}
		for range n {
			b.WriteByte(Alphabet[g.src.IntN(len(Alphabet))])
		}
	}
	return b.String()
}

// Valid reports whether s has exactly the shape Generate produces.
// It does not normalize: lower-case letters make s invalid.
func Valid(s string) bool {
	if len(s) != Len {
		return false
	}

	pos := 0
	for i, n := range Groups {
		if i > 0 {
			if s[pos] != '-' {
				return false
			}
			pos++
		}
		for range n {
			if !isKeySymbol(s[pos]) {
				return false
			}
			pos++
		}
	}
	return true
}

func isKeySymbol(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

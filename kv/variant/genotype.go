package variant

import (
	"strconv"
	"strings"

	"github.com/pingcap/errors"
)

// Missing is the allele index of an uncalled allele.
const Missing = -1

// Genotype is a parsed GT value. Alleles index the reference (0), the alternate (1) and secondary alternates (2..).
type Genotype struct {
	Alleles []int
	Phased  bool
}

// ParseGenotype parses values like "0/1", "1|0", "./.", "." or "2".
func ParseGenotype(s string) (Genotype, error) {
	if s == "" {
		return Genotype{}, errors.New("empty genotype")
	}
	g := Genotype{Phased: strings.IndexByte(s, '|') >= 0}
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '|' }) {
		if part == "." {
			g.Alleles = append(g.Alleles, Missing)
			continue
		}
		idx, err := strconv.Atoi(part)
		if err != nil || idx < 0 {
			return Genotype{}, errors.Errorf("invalid allele %q in genotype %q", part, s)
		}
		g.Alleles = append(g.Alleles, idx)
	}
	if len(g.Alleles) == 0 {
		return Genotype{}, errors.Errorf("invalid genotype %q", s)
	}
	return g, nil
}

// Is reports whether g has exactly the given allele indexes, in order. Phase is not compared.
func (g Genotype) Is(alleles ...int) bool {
	if len(g.Alleles) != len(alleles) {
		return false
	}
	for i, a := range alleles {
		if g.Alleles[i] != a {
			return false
		}
	}
	return true
}

func (g Genotype) String() string {
	sep := "/"
	if g.Phased {
		sep = "|"
	}
	parts := make([]string, len(g.Alleles))
	for i, a := range g.Alleles {
		if a == Missing {
			parts[i] = "."
		} else {
			parts[i] = strconv.Itoa(a)
		}
	}
	return strings.Join(parts, sep)
}

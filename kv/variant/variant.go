package variant

import (
	"fmt"
	"strings"
)

// VariantType classifies an alternate allele.
type VariantType int32

const (
	SNV VariantType = iota
	MNV
	INDEL
	SV
	CNV
	NoVariation
	Symbolic
	Mixed
)

var variantTypeNames = []string{"SNV", "MNV", "INDEL", "SV", "CNV", "NO_VARIATION", "SYMBOLIC", "MIXED"}

func (t VariantType) String() string {
	if t < 0 || int(t) >= len(variantTypeNames) {
		return fmt.Sprintf("VariantType(%d)", int32(t))
	}
	return variantTypeNames[t]
}

// ParseVariantType is the inverse of VariantType.String.
func ParseVariantType(s string) (VariantType, error) {
	for i, name := range variantTypeNames {
		if name == s {
			return VariantType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown variant type %q", s)
}

// InferType guesses the type of alt against ref the way VCF producers do.
func InferType(ref, alt string) VariantType {
	switch {
	case alt == "" || alt == ".":
		return NoVariation
	case strings.HasPrefix(alt, "<"):
		if strings.HasPrefix(alt, "<CN") || strings.HasPrefix(alt, "<DUP") || strings.HasPrefix(alt, "<DEL") {
			return CNV
		}
		return Symbolic
	case strings.ContainsAny(alt, "[]"):
		return SV
	case len(ref) == 1 && len(alt) == 1:
		return SNV
	case len(ref) == len(alt):
		return MNV
	}
	return INDEL
}

// AlternateCoordinate locates an additional alternate allele of a multi-allelic site.
type AlternateCoordinate struct {
	Chromosome string
	Start      int32
	End        int32
	Reference  string
	Alternate  string
	Type       VariantType
}

// SampleCall is the call of one sample in a study entry.
type SampleCall struct {
	Name     string
	Genotype string
	// Filter is the per-sample filter value, "PASS" when the call passed every filter.
	Filter string
}

// FileEntry carries file level attributes, like the site FILTER, of the file a study entry was read from.
type FileEntry struct {
	FileID     string
	Attributes map[string]string
}

// FilterAttribute is the file attribute holding the site filter.
const FilterAttribute = "FILTER"

// StudyEntry is the part of a variant belonging to one study.
type StudyEntry struct {
	StudyID             string
	Samples             []SampleCall
	Files               []FileEntry
	SecondaryAlternates []AlternateCoordinate
}

// Variant is one site with the study entries that observed it.
type Variant struct {
	Chromosome string
	Start      uint32
	End        uint32
	Reference  string
	Alternate  string
	Studies    []*StudyEntry
}

// Study returns the entry of studyID, or nil.
func (v *Variant) Study(studyID string) *StudyEntry {
	for _, se := range v.Studies {
		if se.StudyID == studyID {
			return se
		}
	}
	return nil
}

func (v *Variant) String() string {
	return fmt.Sprintf("%s:%d:%s:%s", v.Chromosome, v.Start, v.Reference, v.Alternate)
}

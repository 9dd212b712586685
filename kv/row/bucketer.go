package row

import (
	"strconv"

	"github.com/gtkv/gtkv/kv/variant"
)

// Aggregate classifies the calls of study studyID at v into a Row. mapping resolves sample names to sample ids.
//
// Pass counts are accumulated from the raw per-sample filters, so Aggregate must run exactly once over unaggregated
// input. A numeric FILTER attribute on the first file seeds the pass count, which is how already aggregated entries
// carry it.
func Aggregate(v *variant.Variant, studyID uint32, mapping map[string]uint32) (*Row, error) {
	key := Key{
		StudyID:    studyID,
		Chromosome: v.Chromosome,
		Position:   v.Start,
		Reference:  v.Reference,
		Alternate:  v.Alternate,
	}
	se := v.Study(strconv.FormatUint(uint64(studyID), 10))
	if se == nil {
		return nil, &ValidationError{Key: key, Reason: "variant has no entry for the study"}
	}
	b := NewBuilder(key)
	if len(se.Files) > 0 {
		if pass, err := strconv.ParseUint(se.Files[0].Attributes[variant.FilterAttribute], 10, 32); err == nil {
			b.AddPassCount(uint32(pass))
		}
	}
	b.SetSecondaryAlternates(se.SecondaryAlternates)
	for _, call := range se.Samples {
		id, ok := mapping[call.Name]
		if !ok {
			return nil, b.invalid("unknown sample %q", call.Name)
		}
		gt, err := variant.ParseGenotype(call.Genotype)
		if err != nil {
			return nil, b.invalid("sample %q: %v", call.Name, err)
		}
		if err = classify(b, id, gt, call.Genotype); err != nil {
			return nil, err
		}
		if call.Filter == "PASS" {
			b.AddPassCount(1)
		}
	}
	return b.Build()
}

// classify files one call. Only allele indexes are compared, so 0|1 is a het call like 0/1.
func classify(b *Builder, id uint32, gt variant.Genotype, literal string) error {
	switch {
	case gt.Is(0, 0):
		b.AddCallCount(1)
		return b.CountHomRef(id)
	case gt.Is(0, 1), gt.Is(1, 0):
		b.AddCallCount(1)
		return b.Add(Het, id)
	case gt.Is(1, 1):
		b.AddCallCount(1)
		return b.Add(HomVar, id)
	case gt.Is(variant.Missing), gt.Is(variant.Missing, variant.Missing):
		return b.Add(NoCall, id)
	}
	b.AddCallCount(1)
	return b.AddOther(id, literal)
}

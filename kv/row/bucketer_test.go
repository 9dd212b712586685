package row

import (
	"testing"

	"github.com/gtkv/gtkv/kv/variant"
	"github.com/pingcap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVariant(calls ...variant.SampleCall) *variant.Variant {
	return &variant.Variant{
		Chromosome: "1",
		Start:      1000,
		End:        1000,
		Reference:  "A",
		Alternate:  "C",
		Studies: []*variant.StudyEntry{{
			StudyID: "1",
			Samples: calls,
			Files:   []variant.FileEntry{{FileID: "f1", Attributes: map[string]string{variant.FilterAttribute: "PASS"}}},
		}},
	}
}

func gt(name, genotype string) variant.SampleCall {
	return variant.SampleCall{Name: name, Genotype: genotype, Filter: "PASS"}
}

var testMapping = map[string]uint32{"s1": 1, "s2": 2, "s3": 3, "s4": 4, "s5": 5, "s6": 6, "s7": 7, "s8": 8}

func TestAggregateClassification(t *testing.T) {
	v := testVariant(gt("s1", "0/0"), gt("s2", "0/1"), gt("s3", "1|0"), gt("s4", "1/1"),
		gt("s5", "./."), gt("s6", "."), gt("s7", "2/1"))
	r, err := Aggregate(v, 1, testMapping)
	require.Nil(t, err)

	assert.Equal(t, uint32(1), r.HomRefCount())
	assert.Equal(t, uint32(5), r.CallCount())
	assert.Equal(t, uint32(7), r.PassCount())
	assert.Equal(t, []uint32{2, 3}, r.Samples(Het))
	assert.Equal(t, []uint32{4}, r.Samples(HomVar))
	assert.Equal(t, []uint32{5, 6}, r.Samples(NoCall))
	assert.Equal(t, []uint32{7}, r.Samples(Other))
	assert.Equal(t, map[uint32]string{7: "2/1"}, r.Overflow())
	assert.Equal(t, 0, r.Size(HomRef))
	assert.Equal(t, Key{StudyID: 1, Chromosome: "1", Position: 1000, Reference: "A", Alternate: "C"}, r.Key())
}

func TestAggregatePhaseIgnored(t *testing.T) {
	v := testVariant(gt("s1", "0|1"), gt("s2", "1|1"), gt("s3", "0|0"), gt("s4", ".|."), gt("s5", "1"))
	r, err := Aggregate(v, 1, testMapping)
	require.Nil(t, err)
	assert.Equal(t, []uint32{1}, r.Samples(Het))
	assert.Equal(t, []uint32{2}, r.Samples(HomVar))
	assert.Equal(t, uint32(1), r.HomRefCount())
	assert.Equal(t, []uint32{4}, r.Samples(NoCall))
	assert.Equal(t, map[uint32]string{5: "1"}, r.Overflow())
}

func TestAggregatePassCount(t *testing.T) {
	v := testVariant(
		variant.SampleCall{Name: "s1", Genotype: "0/1", Filter: "PASS"},
		variant.SampleCall{Name: "s2", Genotype: "0/1", Filter: "LowQual"},
		variant.SampleCall{Name: "s3", Genotype: "0/1", Filter: "pass"},
	)
	r, err := Aggregate(v, 1, testMapping)
	require.Nil(t, err)
	assert.Equal(t, uint32(1), r.PassCount())

	v.Studies[0].Files[0].Attributes[variant.FilterAttribute] = "10"
	r, err = Aggregate(v, 1, testMapping)
	require.Nil(t, err)
	assert.Equal(t, uint32(11), r.PassCount())
}

func TestAggregateSecondaryAlternates(t *testing.T) {
	v := testVariant(gt("s1", "2/2"))
	alts := []variant.AlternateCoordinate{{Chromosome: "1", Start: 1000, End: 1000, Reference: "A", Alternate: "G", Type: variant.SNV}}
	v.Studies[0].SecondaryAlternates = alts
	r, err := Aggregate(v, 1, testMapping)
	require.Nil(t, err)
	assert.Equal(t, alts, r.SecondaryAlternates())

	// Callers cannot alias the row contents.
	got := r.SecondaryAlternates()
	got[0].Alternate = "T"
	r.Overflow()[1] = "0/0"
	assert.Equal(t, "G", r.SecondaryAlternates()[0].Alternate)
	assert.Equal(t, "2/2", r.Overflow()[1])
}

func TestAggregateValidation(t *testing.T) {
	cases := []*variant.Variant{
		testVariant(gt("s1", "0/0"), gt("s1", "0/1")),
		testVariant(gt("s1", "0/0"), gt("s1", "0/0")),
		testVariant(gt("unknown", "0/1")),
		testVariant(gt("s1", "x/y")),
	}
	for _, v := range cases {
		_, err := Aggregate(v, 1, testMapping)
		require.NotNil(t, err)
		_, ok := errors.Cause(err).(*ValidationError)
		assert.True(t, ok, "%v", err)
	}
	_, err := Aggregate(testVariant(gt("s1", "0/1")), 2, testMapping)
	_, ok := err.(*ValidationError)
	assert.True(t, ok)
}

func TestBuilder(t *testing.T) {
	key := Key{StudyID: 3, Chromosome: "X", Position: 5, Reference: "A", Alternate: "T"}
	b := NewBuilder(key)
	require.Nil(t, b.Add(Het, 1))
	require.Nil(t, b.AddOther(2, "1/2"))
	require.NotNil(t, b.Add(HomVar, 1))
	require.NotNil(t, b.CountHomRef(2))
	b.AddCallCount(1)
	_, err := b.Build()
	require.NotNil(t, err, "call count lower than called samples")

	b = NewBuilder(key)
	require.Nil(t, b.Add(Het, 1))
	b.AddCallCount(1).AddHomRefCount(0)
	r, err := b.Build()
	require.Nil(t, err)
	assert.Equal(t, 1, r.Size(Het))
	assert.Equal(t, 0, r.Size(Other))
	_, err = b.Build()
	assert.NotNil(t, err, "a builder hands out one row")
}

func TestBucketCodes(t *testing.T) {
	for _, b := range Buckets {
		got, ok := BucketByCode(b.Code())
		require.True(t, ok)
		assert.Equal(t, b, got)
	}
	_, ok := BucketByCode("X")
	assert.False(t, ok)
	assert.Equal(t, "HOM_VAR", HomVar.String())
}

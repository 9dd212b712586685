package row

import (
	"fmt"

	"github.com/gtkv/gtkv/kv/variant"
)

// Builder collects the content of one Row. A Builder must not be used after Build.
type Builder struct {
	row   *Row
	owner map[uint32]Bucket
}

func NewBuilder(key Key) *Builder {
	return &Builder{
		row: &Row{
			key:      key,
			members:  make(map[Bucket]map[uint32]struct{}),
			overflow: make(map[uint32]string),
		},
		owner: make(map[uint32]Bucket),
	}
}

func (b *Builder) invalid(format string, args ...interface{}) error {
	return &ValidationError{Key: b.row.key, Reason: fmt.Sprintf(format, args...)}
}

func (b *Builder) claim(id uint32, bucket Bucket) error {
	if prev, ok := b.owner[id]; ok {
		return b.invalid("sample %d already classified as %s, cannot add it to %s", id, prev, bucket)
	}
	b.owner[id] = bucket
	return nil
}

// Add puts sample id into bucket. A sample may be classified only once per row. Other members added this way have
// no recorded genotype.
func (b *Builder) Add(bucket Bucket, id uint32) error {
	if err := b.claim(id, bucket); err != nil {
		return err
	}
	b.add(bucket, id)
	return nil
}

func (b *Builder) add(bucket Bucket, id uint32) {
	set := b.row.members[bucket]
	if set == nil {
		set = make(map[uint32]struct{})
		b.row.members[bucket] = set
	}
	set[id] = struct{}{}
}

// AddOther puts sample id into the Other bucket and records its literal genotype.
func (b *Builder) AddOther(id uint32, genotype string) error {
	if err := b.claim(id, Other); err != nil {
		return err
	}
	b.add(Other, id)
	b.row.overflow[id] = genotype
	return nil
}

// CountHomRef counts sample id as 0/0 without storing it.
func (b *Builder) CountHomRef(id uint32) error {
	if err := b.claim(id, HomRef); err != nil {
		return err
	}
	b.row.homRefCount++
	return nil
}

func (b *Builder) AddHomRefCount(n uint32) *Builder {
	b.row.homRefCount += n
	return b
}

func (b *Builder) AddPassCount(n uint32) *Builder {
	b.row.passCount += n
	return b
}

func (b *Builder) AddCallCount(n uint32) *Builder {
	b.row.callCount += n
	return b
}

func (b *Builder) SetSecondaryAlternates(alts []variant.AlternateCoordinate) *Builder {
	b.row.secAlts = append([]variant.AlternateCoordinate(nil), alts...)
	return b
}

// Build checks the row invariants and hands the row over.
func (b *Builder) Build() (*Row, error) {
	r := b.row
	if r == nil {
		return nil, &ValidationError{Reason: "builder already used"}
	}
	b.row = nil
	called := uint64(r.homRefCount)
	for bucket, set := range r.members {
		if bucket != NoCall {
			called += uint64(len(set))
		}
	}
	if uint64(r.callCount) < called {
		return nil, &ValidationError{Key: r.key, Reason: fmt.Sprintf("call count %d below %d called samples", r.callCount, called)}
	}
	for id := range r.overflow {
		if _, ok := r.members[Other][id]; !ok {
			return nil, &ValidationError{Key: r.key, Reason: fmt.Sprintf("overflow sample %d is not in %s", id, Other)}
		}
	}
	for bucket, set := range r.members {
		if len(set) == 0 {
			delete(r.members, bucket)
		}
	}
	return r, nil
}

package row

import (
	"fmt"
	"sort"

	"github.com/gtkv/gtkv/kv/variant"
)

// Bucket is a genotype category grouping the samples sharing that call at a row.
type Bucket int

const (
	NoCall Bucket = iota
	HomRef
	Het
	HomVar
	Other
)

var bucketCodes = [...]string{".", "0/0", "0/1", "1/1", "?"}
var bucketNames = [...]string{"NOCALL", "HOM_REF", "HET", "HOM_VAR", "OTHER"}

// Buckets lists every bucket in wire order.
var Buckets = []Bucket{NoCall, HomRef, Het, HomVar, Other}

// Code is the stable wire code of b.
func (b Bucket) Code() string {
	return bucketCodes[b]
}

func (b Bucket) String() string {
	if b < 0 || int(b) >= len(bucketNames) {
		return fmt.Sprintf("Bucket(%d)", int(b))
	}
	return bucketNames[b]
}

// BucketByCode returns the bucket with the given wire code.
func BucketByCode(code string) (Bucket, bool) {
	for i, c := range bucketCodes {
		if c == code {
			return Bucket(i), true
		}
	}
	return 0, false
}

// Key identifies a row: one study at one site.
type Key struct {
	StudyID    uint32
	Chromosome string
	Position   uint32
	Reference  string
	Alternate  string
}

func (k Key) String() string {
	return fmt.Sprintf("%d_%s:%d:%s:%s", k.StudyID, k.Chromosome, k.Position, k.Reference, k.Alternate)
}

// Row is the aggregated genotype record of one study at one site. A Row is immutable, it is produced by a Builder and
// every accessor returns a copy.
type Row struct {
	key         Key
	homRefCount uint32
	passCount   uint32
	callCount   uint32
	members     map[Bucket]map[uint32]struct{}
	overflow    map[uint32]string
	secAlts     []variant.AlternateCoordinate
}

func (r *Row) Key() Key {
	return r.key
}

// HomRefCount is the number of samples called 0/0. Those samples are not stored individually.
func (r *Row) HomRefCount() uint32 {
	return r.homRefCount
}

func (r *Row) PassCount() uint32 {
	return r.passCount
}

// CallCount counts every classified sample except no-calls.
func (r *Row) CallCount() uint32 {
	return r.callCount
}

// Samples returns the sorted ids in bucket b.
func (r *Row) Samples(b Bucket) []uint32 {
	set := r.members[b]
	ids := make([]uint32, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Size is the number of samples in bucket b.
func (r *Row) Size(b Bucket) int {
	return len(r.members[b])
}

// Overflow maps the samples of the Other bucket to their literal genotype.
func (r *Row) Overflow() map[uint32]string {
	m := make(map[uint32]string, len(r.overflow))
	for id, gt := range r.overflow {
		m[id] = gt
	}
	return m
}

func (r *Row) SecondaryAlternates() []variant.AlternateCoordinate {
	return append([]variant.AlternateCoordinate(nil), r.secAlts...)
}

// Equal reports whether both rows hold the same key, counters, bucket membership, overflow and secondary alternates.
func (r *Row) Equal(o *Row) bool {
	if r.key != o.key || r.homRefCount != o.homRefCount || r.passCount != o.passCount || r.callCount != o.callCount {
		return false
	}
	for _, b := range Buckets {
		if len(r.members[b]) != len(o.members[b]) {
			return false
		}
		for id := range r.members[b] {
			if _, ok := o.members[b][id]; !ok {
				return false
			}
		}
	}
	if len(r.overflow) != len(o.overflow) || len(r.secAlts) != len(o.secAlts) {
		return false
	}
	for id, gt := range r.overflow {
		if o.overflow[id] != gt {
			return false
		}
	}
	for i := range r.secAlts {
		if r.secAlts[i] != o.secAlts[i] {
			return false
		}
	}
	return true
}

func (r *Row) String() string {
	return fmt.Sprintf("%s pass: %d; call: %d; hr: %d; 0/1: %v; 1/1: %v; ?: %v; .: %v",
		r.key, r.passCount, r.callCount, r.homRefCount,
		r.Samples(Het), r.Samples(HomVar), r.Samples(Other), r.Samples(NoCall))
}

// ValidationError reports a row that breaks an aggregation invariant, usually a defect of the upstream merge.
type ValidationError struct {
	Key    Key
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid row %s: %s", e.Key, e.Reason)
}

package variant

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pingcap/errors"
)

const (
	vcfChrom = iota
	vcfPos
	vcfID
	vcfRef
	vcfAlt
	vcfQual
	vcfFilter
	vcfInfo
	vcfFormat
	vcfFirstSample
)

// Reader reads the records of a VCF file as variants of a single study entry. Each comma separated ALT allele
// after the first becomes a secondary alternate of the first one.
type Reader struct {
	scanner *bufio.Scanner
	studyID string
	fileID  string
	samples []string
	line    int
}

// NewReader consumes the header of a VCF stream.
func NewReader(r io.Reader, studyID, fileID string) (*Reader, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	vr := &Reader{scanner: scanner, studyID: studyID, fileID: fileID}
	for scanner.Scan() {
		vr.line++
		text := scanner.Text()
		if strings.HasPrefix(text, "##") {
			continue
		}
		if !strings.HasPrefix(text, "#CHROM") {
			return nil, errors.Errorf("line %d: expected #CHROM header", vr.line)
		}
		fields := strings.Split(text, "\t")
		if len(fields) > vcfFirstSample {
			vr.samples = fields[vcfFirstSample:]
		}
		return vr, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	return nil, errors.New("missing #CHROM header")
}

// Samples returns the sample names in column order.
func (r *Reader) Samples() []string {
	return r.samples
}

// Next returns the next variant, or io.EOF.
func (r *Reader) Next() (*Variant, error) {
	for r.scanner.Scan() {
		r.line++
		text := r.scanner.Text()
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		v, err := r.parse(strings.Split(text, "\t"))
		if err != nil {
			return nil, errors.Annotatef(err, "line %d", r.line)
		}
		return v, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	return nil, io.EOF
}

func (r *Reader) parse(fields []string) (*Variant, error) {
	want := vcfFormat
	if len(r.samples) > 0 {
		want = vcfFirstSample + len(r.samples)
	}
	if len(fields) < want {
		return nil, errors.Errorf("expected %d columns, got %d", want, len(fields))
	}
	pos, err := strconv.ParseUint(fields[vcfPos], 10, 32)
	if err != nil {
		return nil, errors.Errorf("invalid position %q", fields[vcfPos])
	}
	ref := fields[vcfRef]
	alts := strings.Split(fields[vcfAlt], ",")
	v := &Variant{
		Chromosome: fields[vcfChrom],
		Start:      uint32(pos),
		End:        uint32(pos) + uint32(len(ref)) - 1,
		Reference:  ref,
		Alternate:  alts[0],
	}
	if len(ref) == 0 {
		v.End = v.Start
	}
	se := &StudyEntry{
		StudyID: r.studyID,
		Files: []FileEntry{{
			FileID:     r.fileID,
			Attributes: map[string]string{FilterAttribute: fields[vcfFilter]},
		}},
	}
	for _, alt := range alts[1:] {
		se.SecondaryAlternates = append(se.SecondaryAlternates, AlternateCoordinate{
			Chromosome: v.Chromosome,
			Start:      int32(v.Start),
			End:        int32(v.End),
			Reference:  ref,
			Alternate:  alt,
			Type:       InferType(ref, alt),
		})
	}
	if len(r.samples) > 0 {
		if se.Samples, err = r.parseSamples(fields); err != nil {
			return nil, err
		}
	}
	v.Studies = []*StudyEntry{se}
	return v, nil
}

func (r *Reader) parseSamples(fields []string) ([]SampleCall, error) {
	gtIdx, ftIdx := -1, -1
	for i, key := range strings.Split(fields[vcfFormat], ":") {
		switch key {
		case "GT":
			gtIdx = i
		case "FT":
			ftIdx = i
		}
	}
	if gtIdx < 0 {
		return nil, errors.Errorf("FORMAT %q has no GT", fields[vcfFormat])
	}
	calls := make([]SampleCall, 0, len(r.samples))
	for i, name := range r.samples {
		values := strings.Split(fields[vcfFirstSample+i], ":")
		call := SampleCall{Name: name, Genotype: ".", Filter: fields[vcfFilter]}
		if gtIdx < len(values) {
			call.Genotype = values[gtIdx]
		}
		if ftIdx >= 0 && ftIdx < len(values) {
			call.Filter = values[ftIdx]
		}
		calls = append(calls, call)
	}
	return calls, nil
}

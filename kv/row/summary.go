package row

import (
	"github.com/montanaflynn/stats"
	"github.com/pingcap/errors"
)

// Distribution describes the values one quantity takes over a set of rows.
type Distribution struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
	Max    float64 `json:"max"`
}

// Summary describes a set of rows.
type Summary struct {
	Rows         int          `json:"rows"`
	CallCount    Distribution `json:"callCount"`
	Het          Distribution `json:"het"`
	HomVar       Distribution `json:"homVar"`
	AltFrequency Distribution `json:"altFrequency"`
}

// Summarizer accumulates rows into a Summary. The zero value is ready to use.
type Summarizer struct {
	calls  []float64
	het    []float64
	homVar []float64
	freq   []float64
}

func (s *Summarizer) Add(r *Row) {
	het, homVar := float64(r.Size(Het)), float64(r.Size(HomVar))
	s.calls = append(s.calls, float64(r.CallCount()))
	s.het = append(s.het, het)
	s.homVar = append(s.homVar, homVar)
	// Diploid calls, a het carries one alternate allele and a hom-var two.
	if r.CallCount() > 0 {
		s.freq = append(s.freq, (het+2*homVar)/float64(2*r.CallCount()))
	}
}

func (s *Summarizer) Summary() (Summary, error) {
	sum := Summary{Rows: len(s.calls)}
	var err error
	for _, d := range []struct {
		data []float64
		dist *Distribution
	}{
		{s.calls, &sum.CallCount},
		{s.het, &sum.Het},
		{s.homVar, &sum.HomVar},
		{s.freq, &sum.AltFrequency},
	} {
		if *d.dist, err = distribution(d.data); err != nil {
			return Summary{}, err
		}
	}
	return sum, nil
}

func distribution(data []float64) (Distribution, error) {
	if len(data) == 0 {
		return Distribution{}, nil
	}
	var (
		d   Distribution
		err error
	)
	if d.Mean, err = stats.Mean(data); err != nil {
		return d, errors.Trace(err)
	}
	if d.Median, err = stats.Median(data); err != nil {
		return d, errors.Trace(err)
	}
	if d.P95, err = stats.Percentile(data, 95); err != nil {
		return d, errors.Trace(err)
	}
	if d.Max, err = stats.Max(data); err != nil {
		return d, errors.Trace(err)
	}
	return d, nil
}

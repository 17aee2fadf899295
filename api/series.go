// SPDX-FileCopyrightText: 2020 Jecoz
//
// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
)

// Series holds the samples received during a producer session.
type Series struct {
	mu      sync.RWMutex
	samples []Sample
	max     int
	version uint64
	rewinds int
}

// Snapshot is a copy of a Series at a given version.
type Snapshot struct {
	Version uint64   `json:"version"`
	Samples []Sample `json:"samples"`
}

// NewSeries returns an empty series keeping at most maxPoints samples.
// Zero keeps everything.
func NewSeries(maxPoints int) *Series {
	if maxPoints < 0 {
		maxPoints = 0
	}
	return &Series{max: maxPoints}
}

// normalize fills in the cumulative fields the producer left out, using
// prev as the running total.
func normalize(s Sample, prev *Sample) Sample {
	var sums, maxSums [3]float64
	if prev != nil {
		sums = prev.Sums()
		maxSums = prev.MaxSums
	}
	comps := s.Components()

	if !s.HasSums {
		s.OverTimeSum = sums[0] + math.Abs(comps[0])
		s.RotationalSum = sums[1] + math.Abs(comps[1])
		s.CurvatureSum = sums[2] + math.Abs(comps[2])
	}
	if !s.HasMaxSums {
		idx, m := 0, math.Abs(comps[0])
		for i := 1; i < len(comps); i++ {
			if v := math.Abs(comps[i]); v > m {
				idx, m = i, v
			}
		}
		maxSums[idx] += m
		s.MaxSums = maxSums
	}
	return s
}

// Append normalizes s against the last stored sample and stores it. A
// sample older than the last one means the producer restarted its clock:
// the series is cleared first.
func (s *Series) Append(smp Sample) Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev *Sample
	if n := len(s.samples); n > 0 {
		prev = &s.samples[n-1]
		if smp.Time < prev.Time {
			debugf("time went back from %v to %v, starting a new session", prev.Time, smp.Time)
			s.samples = s.samples[:0]
			s.rewinds++
			seriesRewinds.Inc()
			prev = nil
		}
	}

	smp = normalize(smp, prev)
	if s.max > 0 && len(s.samples) >= s.max {
		// Shift instead of reslicing so the backing array does not grow.
		copy(s.samples, s.samples[len(s.samples)-s.max+1:])
		s.samples = s.samples[:s.max-1]
	}
	s.samples = append(s.samples, smp)
	s.version++
	return smp
}

func (s *Series) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = nil
	s.version++
}

func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

// Version changes every time the series is modified.
func (s *Series) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Rewinds reports how many times a time regression reset the series.
func (s *Series) Rewinds() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rewinds
}

func (s *Series) Last() (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.samples) == 0 {
		return Sample{}, false
	}
	return s.samples[len(s.samples)-1], true
}

func (s *Series) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]Sample, len(s.samples))
	copy(cp, s.samples)
	return Snapshot{Version: s.version, Samples: cp}
}

// ReadSeries builds a series out of a recorded stream. Frames that do not
// decode are skipped.
func ReadSeries(r io.Reader, maxPoints int) (*Series, error) {
	s := NewSeries(maxPoints)
	fr := NewFramer(r, 0)
	for {
		frame, err := fr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return s, nil
			}
			if errors.Is(err, ErrFrameTooLarge) {
				continue
			}
			return s, fmt.Errorf("unable to read series: %w", err)
		}
		smp, err := DecodeSample(frame)
		if err != nil {
			errorf("%v: %s", err, frame)
			continue
		}
		s.Append(smp)
	}
}

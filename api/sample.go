// SPDX-FileCopyrightText: 2020 Jecoz
//
// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMissingTime = errors.New("sample has no time field")
	ErrBadMaxSums  = errors.New("maxSums must hold exactly 3 values")
)

// Sample is one reading of the redirection signal, in degrees. Time is
// expressed in seconds from the start of the producer's session.
type Sample struct {
	Time       float64 `json:"time"`
	OverTime   float64 `json:"overTime"`
	Rotational float64 `json:"rotational"`
	Curvature  float64 `json:"curvature"`
	Hybrid     float64 `json:"hybrid"`
	Total      float64 `json:"total"`

	OverTimeSum   float64    `json:"overTimeSum"`
	RotationalSum float64    `json:"rotationalSum"`
	CurvatureSum  float64    `json:"curvatureSum"`
	MaxSums       [3]float64 `json:"maxSums"`

	// Set when the producer sent the cumulative fields itself.
	HasSums    bool `json:"-"`
	HasMaxSums bool `json:"-"`
}

// Components returns over-time, rotational and curvature, in chart order.
func (s Sample) Components() [3]float64 {
	return [3]float64{s.OverTime, s.Rotational, s.Curvature}
}

// Sums returns the cumulative components, in chart order.
func (s Sample) Sums() [3]float64 {
	return [3]float64{s.OverTimeSum, s.RotationalSum, s.CurvatureSum}
}

// wireSample mirrors what producers write. Pointers tell absent fields
// apart from zeros.
type wireSample struct {
	Time       *float64 `json:"time"`
	OverTime   float64  `json:"overTime"`
	Rotational float64  `json:"rotational"`
	Curvature  float64  `json:"curvature"`
	Hybrid     float64  `json:"hybrid"`
	Total      float64  `json:"total"`

	OverTimeSum   *float64  `json:"overTimeSum"`
	RotationalSum *float64  `json:"rotationalSum"`
	CurvatureSum  *float64  `json:"curvatureSum"`
	MaxSums       []float64 `json:"maxSums"`
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// {"overTime":0.1,"rotational":0.0,"curvature":0.4,"overTimeSum":2.3,"rotationalSum":0.0,"curvatureSum":7.9,"time":12.5,"maxSums":[1.2,0.0,9.0]}
func DecodeSample(frame []byte) (Sample, error) {
	var w wireSample
	if err := json.Unmarshal(frame, &w); err != nil {
		return Sample{}, fmt.Errorf("unable to decode sample: %w", err)
	}
	if w.Time == nil {
		return Sample{}, ErrMissingTime
	}

	s := Sample{
		Time:          *w.Time,
		OverTime:      w.OverTime,
		Rotational:    w.Rotational,
		Curvature:     w.Curvature,
		Hybrid:        w.Hybrid,
		Total:         w.Total,
		OverTimeSum:   deref(w.OverTimeSum),
		RotationalSum: deref(w.RotationalSum),
		CurvatureSum:  deref(w.CurvatureSum),
		HasSums:       w.OverTimeSum != nil || w.RotationalSum != nil || w.CurvatureSum != nil,
	}
	if w.MaxSums != nil {
		if len(w.MaxSums) != 3 {
			return Sample{}, fmt.Errorf("%w, found %d", ErrBadMaxSums, len(w.MaxSums))
		}
		copy(s.MaxSums[:], w.MaxSums)
		s.HasMaxSums = true
	}
	return s, nil
}

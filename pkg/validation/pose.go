// Copyright (C) 2026 Kodiak Visual Systems (eng@kodiakviz.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation for values that cross the
// service boundary before they reach long-lived state.
//
// A single NaN component in a camera pose poisons every downstream
// comparison (NaN != NaN), which would silently break the freshness
// checks in the render queue. These validators reject non-finite input
// at the edge so the queue only ever stores well-ordered values.
package validation

import (
	"errors"
	"fmt"
	"math"
)

// ErrNotFinite is returned when a pose component is NaN or infinite.
// Callers can match it with errors.Is to map the failure to a 400.
var ErrNotFinite = errors.New("pose component is not a finite number")

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidatePose checks that all six pose components are finite.
//
// The error names the offending field and index so API clients can fix
// the exact component:
//
//	if err := validation.ValidatePose(pos, rot); err != nil {
//	    c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
//	    return
//	}
func ValidatePose(position, rotation [3]float64) error {
	for i, v := range position {
		if !Finite(v) {
			return fmt.Errorf("position[%d] = %v: %w", i, v, ErrNotFinite)
		}
	}
	for i, v := range rotation {
		if !Finite(v) {
			return fmt.Errorf("rotation[%d] = %v: %w", i, v, ErrNotFinite)
		}
	}
	return nil
}

// Vec3FromSlice converts a validated 3-element slice into an array.
// Returns an error if the length is wrong; component finiteness is the
// caller's concern (see ValidatePose).
func Vec3FromSlice(s []float64) ([3]float64, error) {
	if len(s) != 3 {
		return [3]float64{}, fmt.Errorf("expected 3 components, got %d", len(s))
	}
	return [3]float64{s[0], s[1], s[2]}, nil
}

// Package tracker folds observations into per-target state and detects
// transitions between up and down.
package tracker

import "github.com/hamed0406/pingwatch/internal/domain"

// Apply returns the state that results from obs and, when the status moved
// between two known values, the corresponding change. The first observation
// of a target only establishes a baseline and never produces a change.
func Apply(prev domain.TargetState, obs *domain.Observation) (domain.TargetState, *domain.StateChange) {
	next := domain.TargetState{
		TargetID:      obs.TargetID,
		Status:        obs.Status,
		LastCheckedAt: obs.CheckedAt,
		LastLatencyMS: obs.LatencyMS,
		LastError:     obs.Error,
	}
	if prev.Status == "" || prev.Status == domain.StatusUnknown || prev.Status == obs.Status {
		return next, nil
	}
	return next, &domain.StateChange{
		TargetID:    obs.TargetID,
		Previous:    prev.Status,
		Current:     obs.Status,
		Observation: obs,
	}
}

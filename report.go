package sagascope

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"
)

// RollbackReport summarizes the outcome of a rollback for diagnostics:
// per-status counts and aggregate duration statistics over the attempted
// compensations.
type RollbackReport struct {
	SagaID        string
	CorrelationID string

	Attempted int
	Succeeded int
	Failed    int
	Skipped   int
	Pending   int

	MeanDuration   time.Duration
	StdDevDuration time.Duration
	MaxDuration    time.Duration
	TotalDuration  time.Duration
}

// BuildReport computes a RollbackReport from the scope's descriptors. It is
// meaningful after Rollback has completed; for a committed scope the report
// is empty apart from identity fields.
func BuildReport(scope *Scope) RollbackReport {
	report := RollbackReport{
		SagaID:        scope.Context().ID().String(),
		CorrelationID: scope.Context().CorrelationID(),
	}

	var seconds []float64
	for _, d := range scope.Descriptors() {
		switch d.Status {
		case StatusSucceeded:
			report.Succeeded++
		case StatusFailed:
			report.Failed++
		case StatusSkipped:
			report.Skipped++
			continue
		case StatusPending:
			report.Pending++
			continue
		}
		report.Attempted++
		report.TotalDuration += d.ExecutionDuration
		if d.ExecutionDuration > report.MaxDuration {
			report.MaxDuration = d.ExecutionDuration
		}
		seconds = append(seconds, d.ExecutionDuration.Seconds())
	}

	if len(seconds) > 0 {
		report.MeanDuration = secondsToDuration(stat.Mean(seconds, nil))
		if len(seconds) > 1 {
			report.StdDevDuration = secondsToDuration(stat.StdDev(seconds, nil))
		}
	}

	return report
}

// String implements the fmt.Stringer interface for RollbackReport.
func (r RollbackReport) String() string {
	return fmt.Sprintf(
		"saga %s: attempted=%d succeeded=%d failed=%d skipped=%d mean=%s max=%s",
		r.SagaID, r.Attempted, r.Succeeded, r.Failed, r.Skipped,
		r.MeanDuration, r.MaxDuration,
	)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

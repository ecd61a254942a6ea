package progress

import (
	"math"

	"github.com/futig/interview-client/internal/entity"
)

// Compute derives a progress snapshot from engine-reported counts. It is pure
// and called after every successful status or submit response; the result is
// never cached across a question change.
func Compute(total, answered int) entity.Progress {
	remaining := total - answered
	if remaining < 0 {
		remaining = 0
	}

	percent := 0
	if total > 0 {
		percent = int(math.Round(float64(answered) / float64(total) * 100))
	}

	return entity.Progress{
		Total:     total,
		Answered:  answered,
		Remaining: remaining,
		Percent:   percent,
	}
}

// FromDTO normalizes an engine status payload. The engine's own remaining and
// percentage fields are ignored and recomputed so a buggy or stale server
// snapshot cannot produce an inconsistent view.
func FromDTO(dto entity.ProgressDTO) entity.Progress {
	return Compute(dto.TotalQuestions, dto.AnsweredQuestions)
}

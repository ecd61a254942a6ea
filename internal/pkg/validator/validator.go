package validator

import (
	"fmt"
	"strings"

	"github.com/futig/interview-client/internal/entity"
)

const (
	maxProjectNameLength = 120
	maxAnswerLength      = 8000
)

// ValidateProjectName checks the project name before a create-session call.
func ValidateProjectName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: project name is empty", entity.ErrValidation)
	}
	if len(name) > maxProjectNameLength {
		return fmt.Errorf("%w: project name exceeds %d characters", entity.ErrValidation, maxProjectNameLength)
	}
	return nil
}

// ValidateAnswer checks answer text before submission. An empty answer to a
// required question fails locally instead of wasting a round trip.
func ValidateAnswer(text string, required bool) error {
	text = strings.TrimSpace(text)
	if text == "" && required {
		return fmt.Errorf("%w: answer is empty", entity.ErrValidation)
	}
	if len(text) > maxAnswerLength {
		return fmt.Errorf("%w: answer exceeds %d characters", entity.ErrValidation, maxAnswerLength)
	}
	return nil
}

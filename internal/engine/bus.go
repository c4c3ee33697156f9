package engine

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/praxis-agents/qamem/internal/qa"
)

// HandleValidationSubmit is the bus handler for qamem.validation.submit.
// Bus deliveries have no reply channel, so rejections are logged rather
// than surfaced; harnesses that need the result use the HTTP endpoint.
func (eng *Engine) HandleValidationSubmit(subject string, data []byte) {
	ctx := context.Background()

	var sub qa.Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		eng.logger.Error("failed to parse validation submission", "subject", subject, "error", err)
		return
	}

	if _, err := eng.Validate(ctx, sub); err != nil {
		switch {
		case errors.Is(err, qa.ErrLockConflict):
			// Retryable; the publisher redelivers with the same event id.
			eng.logger.Warn("validation deferred on lock contention", "qa_id", sub.QAID)
		case errors.Is(err, qa.ErrInvalidSignal), errors.Is(err, qa.ErrNotFound), errors.Is(err, qa.ErrTerminalState):
			eng.logger.Warn("validation rejected", "qa_id", sub.QAID, "error", err)
		default:
			eng.logger.Error("validation failed", "qa_id", sub.QAID, "error", err)
		}
	}
}

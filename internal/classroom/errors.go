package classroom

import "errors"

var (
	// ErrFallbackTooSoon rejects an AI fallback request before the
	// waiting period since the question was asked has elapsed. The
	// teacher gets first crack at every question.
	ErrFallbackTooSoon = errors.New("AI answer not available yet; give the teacher a moment first")

	// ErrNoAnswers rejects analysis of a released question nobody has
	// answered.
	ErrNoAnswers = errors.New("no answers to analyze")

	// ErrNoExitTickets rejects summarization before any ticket exists.
	ErrNoExitTickets = errors.New("no exit tickets to summarize")

	// ErrNoActivity rejects a concerns roll-up for a class with neither
	// questions nor exit tickets.
	ErrNoActivity = errors.New("no student questions or exit tickets yet")
)

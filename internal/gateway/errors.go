package gateway

import "errors"

// Kind classifies a failed enrichment call so the HTTP boundary can give
// actionable guidance instead of a generic failure.
type Kind int

const (
	// KindCredential means the API key is missing or rejected.
	KindCredential Kind = iota + 1
	// KindQuota means the upstream rate limit or quota was hit.
	KindQuota
	// KindTransient covers every other upstream failure; retrying may help.
	KindTransient
)

// Error is a classified enrichment failure. Message is user-facing.
type Error struct {
	Kind    Kind
	Status  int // upstream HTTP status; 0 when the call never left
	Message string
}

func (e *Error) Error() string { return e.Message }

// AsError unwraps err into a gateway Error, if it is one.
func AsError(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

func errMissingKey() *Error {
	return &Error{
		Kind:    KindCredential,
		Message: "Gemini API key missing or invalid. Add GEMINI_API_KEY to .env (get a key at https://aistudio.google.com/apikey)",
	}
}

// classify maps an upstream failure onto the error taxonomy. 401/403 are
// credential problems, 429 is quota, anything else is transient.
func classify(status int, detail string) *Error {
	switch status {
	case 401, 403:
		return &Error{
			Kind:    KindCredential,
			Status:  status,
			Message: "Gemini API key missing or invalid. Add GEMINI_API_KEY to .env (get a key at https://aistudio.google.com/apikey)",
		}
	case 429:
		return &Error{
			Kind:    KindQuota,
			Status:  status,
			Message: "Gemini rate limit reached (out of tokens or requests). Wait a minute and try again, or use a new API key at https://aistudio.google.com/apikey",
		}
	default:
		msg := detail
		if msg == "" || len(msg) >= 200 {
			msg = "AI request failed. Try again."
		}
		return &Error{Kind: KindTransient, Status: status, Message: msg}
	}
}

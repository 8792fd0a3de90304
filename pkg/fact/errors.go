package fact

import (
	"fmt"

	"github.com/projecthamster/hamster-sub000/pkg/timerange"
)

// Code classifies a validation failure.
type Code string

const (
	MissingStartTime   Code = "missing_start_time"
	MissingActivity    Code = "missing_activity"
	NegativeDuration   Code = "negative_duration"
	ForbiddenCharacter Code = "forbidden_character"
)

// Error is a validation failure raised before any storage mutation.
type Error struct {
	Code Code
	Msg  string
	// Suggested is set for NegativeDuration: the same range with the end
	// moved to the next day.
	Suggested     timerange.Range
	SuggestedText string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg != "" {
		return e.Msg
	}
	return string(e.Code)
}

// Is matches any *Error with the same code, so errors.Is(err, ErrNegativeDuration)
// works for errors carrying a suggestion.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrMissingStartTime   = &Error{Code: MissingStartTime, Msg: "missing start time"}
	ErrMissingActivity    = &Error{Code: MissingActivity, Msg: "missing activity"}
	ErrNegativeDuration   = &Error{Code: NegativeDuration, Msg: "duration would be negative"}
	ErrForbiddenCharacter = &Error{Code: ForbiddenCharacter, Msg: "forbidden character"}
)

func negativeDuration(suggested timerange.Range, text string) *Error {
	return &Error{
		Code: NegativeDuration,
		Msg: fmt.Sprintf("duration would be negative; the activity probably crosses "+
			"the day start, suggested range: %s", text),
		Suggested:     suggested,
		SuggestedText: text,
	}
}

func forbiddenComma(category string) *Error {
	return &Error{
		Code: ForbiddenCharacter,
		Msg:  fmt.Sprintf("forbidden comma in category %q (the description separator is ',,')", category),
	}
}

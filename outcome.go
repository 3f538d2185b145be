package tutor

import (
	"encoding"
	"encoding/json"
	"fmt"
)

// Outcome is the graded result of one submitted answer.
type Outcome int

const (
	Correct   Outcome = iota + 1 // Answer graded correct.
	Incorrect                    // Answer graded incorrect.
	Ungraded                     // Item type has no automatic grading.
)

var (
	outcomeNames  = [...]string{Correct: "correct", Incorrect: "incorrect", Ungraded: "ungraded"}
	outcomeByName = map[string]Outcome{
		"correct":   Correct,
		"incorrect": Incorrect,
		"ungraded":  Ungraded,
	}
)

// Compile-time interface checks.
var (
	_ fmt.Stringer             = Outcome(0)
	_ json.Marshaler           = Outcome(0)
	_ json.Unmarshaler         = (*Outcome)(nil)
	_ encoding.TextMarshaler   = Outcome(0)
	_ encoding.TextUnmarshaler = (*Outcome)(nil)
)

// String returns the name of the outcome ("correct", "incorrect", "ungraded").
// For invalid values it returns "Outcome(n)".
func (o Outcome) String() string {
	if o.IsValid() {
		return outcomeNames[o]
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// IsValid reports whether o is one of Correct, Incorrect or Ungraded.
func (o Outcome) IsValid() bool {
	return o >= Correct && o <= Ungraded
}

// Graded reports whether the outcome carries a correctness signal.
func (o Outcome) Graded() bool {
	return o == Correct || o == Incorrect
}

// OutcomeOf converts a boolean grade into an Outcome.
func OutcomeOf(correct bool) Outcome {
	if correct {
		return Correct
	}
	return Incorrect
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	if !o.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOutcome, int(o))
	}
	return []byte(outcomeNames[o]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(text []byte) error {
	v, ok := outcomeByName[string(text)]
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidOutcome, text)
	}
	*o = v
	return nil
}

// MarshalJSON implements json.Marshaler. Outcome serializes as a JSON string.
func (o Outcome) MarshalJSON() ([]byte, error) {
	text, err := o.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler. Expects a JSON string.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidOutcome, data)
	}
	return o.UnmarshalText([]byte(s))
}

package tutor

import (
	"encoding"
	"encoding/json"
	"fmt"
)

// Policy selects the spaced-repetition scheduling rule.
type Policy int

const (
	PolicyLeitner Policy = iota + 1 // Discrete buckets over a fixed interval table.
	PolicySM2                       // Continuous easiness factor (SuperMemo 2).
)

// Strategy selects how scored candidates become a batch.
type Strategy int

const (
	StrategySoftmax Strategy = iota + 1 // Temperature-scaled sampling without replacement.
	StrategyUCB                         // Upper-confidence-bound ranking.
)

// AbilityModel selects the proficiency update rule.
type AbilityModel int

const (
	AbilityLogistic  AbilityModel = iota + 1 // Logistic prediction, variance-scaled step.
	AbilityFixedStep                         // Constant step per answer.
)

var (
	policyNames   = [...]string{PolicyLeitner: "leitner", PolicySM2: "sm2"}
	strategyNames = [...]string{StrategySoftmax: "softmax", StrategyUCB: "ucb"}
	modelNames    = [...]string{AbilityLogistic: "logistic", AbilityFixedStep: "fixed_step"}
)

// Compile-time interface checks.
var (
	_ fmt.Stringer             = Policy(0)
	_ encoding.TextMarshaler   = Policy(0)
	_ encoding.TextUnmarshaler = (*Policy)(nil)
	_ json.Marshaler           = Policy(0)
	_ json.Unmarshaler         = (*Policy)(nil)

	_ fmt.Stringer             = Strategy(0)
	_ encoding.TextMarshaler   = Strategy(0)
	_ encoding.TextUnmarshaler = (*Strategy)(nil)
	_ json.Marshaler           = Strategy(0)
	_ json.Unmarshaler         = (*Strategy)(nil)

	_ fmt.Stringer             = AbilityModel(0)
	_ encoding.TextMarshaler   = AbilityModel(0)
	_ encoding.TextUnmarshaler = (*AbilityModel)(nil)
	_ json.Marshaler           = AbilityModel(0)
	_ json.Unmarshaler         = (*AbilityModel)(nil)
)

func lookupName(names []string, v int) (string, bool) {
	if v <= 0 || v >= len(names) {
		return "", false
	}
	return names[v], true
}

func parseName(names []string, kind string, text []byte) (int, error) {
	if len(text) == 0 {
		return 0, nil
	}
	for i, n := range names {
		if i > 0 && n == string(text) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %s %q", ErrUnknownPolicy, kind, text)
}

// marshalName encodes the zero value as an empty name, meaning "default".
func marshalName(names []string, kind string, v int) ([]byte, error) {
	if v == 0 {
		return []byte{}, nil
	}
	name, ok := lookupName(names, v)
	if !ok {
		return nil, fmt.Errorf("%w: %s %d", ErrUnknownPolicy, kind, v)
	}
	return []byte(name), nil
}

func unmarshalJSONName(data []byte, kind string, into encoding.TextUnmarshaler) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s %s", ErrUnknownPolicy, kind, data)
	}
	return into.UnmarshalText([]byte(s))
}

func (p Policy) isValid() bool { return p == PolicyLeitner || p == PolicySM2 }

// String returns "leitner" or "sm2". For invalid values it returns "Policy(n)".
func (p Policy) String() string {
	if name, ok := lookupName(policyNames[:], int(p)); ok {
		return name
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) { return marshalName(policyNames[:], "policy", int(p)) }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(text []byte) error {
	v, err := parseName(policyNames[:], "policy", text)
	if err != nil {
		return err
	}
	*p = Policy(v)
	return nil
}

// MarshalJSON implements json.Marshaler. Policy serializes as a JSON string.
func (p Policy) MarshalJSON() ([]byte, error) {
	text, err := p.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Policy) UnmarshalJSON(data []byte) error { return unmarshalJSONName(data, "policy", p) }

func (s Strategy) isValid() bool { return s == StrategySoftmax || s == StrategyUCB }

// String returns "softmax" or "ucb". For invalid values it returns "Strategy(n)".
func (s Strategy) String() string {
	if name, ok := lookupName(strategyNames[:], int(s)); ok {
		return name
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	return marshalName(strategyNames[:], "strategy", int(s))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(text []byte) error {
	v, err := parseName(strategyNames[:], "strategy", text)
	if err != nil {
		return err
	}
	*s = Strategy(v)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (s Strategy) MarshalJSON() ([]byte, error) {
	text, err := s.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Strategy) UnmarshalJSON(data []byte) error { return unmarshalJSONName(data, "strategy", s) }

func (m AbilityModel) isValid() bool { return m == AbilityLogistic || m == AbilityFixedStep }

// String returns "logistic" or "fixed_step". For invalid values it returns "AbilityModel(n)".
func (m AbilityModel) String() string {
	if name, ok := lookupName(modelNames[:], int(m)); ok {
		return name
	}
	return fmt.Sprintf("AbilityModel(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m AbilityModel) MarshalText() ([]byte, error) {
	return marshalName(modelNames[:], "ability model", int(m))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *AbilityModel) UnmarshalText(text []byte) error {
	v, err := parseName(modelNames[:], "ability model", text)
	if err != nil {
		return err
	}
	*m = AbilityModel(v)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (m AbilityModel) MarshalJSON() ([]byte, error) {
	text, err := m.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *AbilityModel) UnmarshalJSON(data []byte) error {
	return unmarshalJSONName(data, "ability model", m)
}

package sift

import (
	"encoding"
	"encoding/json"
	"fmt"
)

// PolicyName identifies a selection policy in logs and serialized
// scheduler snapshots.
type PolicyName int

const (
	WorstElementPolicy     PolicyName = iota + 1 // Largest nominal loss wins.
	LossAccumulationPolicy                       // Largest accumulated loss wins.
	WorstGrowPolicy                              // Fastest-growing loss wins.
	RandomPolicy                                 // Uniform over the batch.
	SequentialPolicy                             // Round-robin over the batch.
	TwoStageRandomPolicy                         // Uniform group, then uniform member.
)

var (
	policyNames = [...]string{
		WorstElementPolicy:     "WorstElement",
		LossAccumulationPolicy: "LossAccumulation",
		WorstGrowPolicy:        "WorstGrow",
		RandomPolicy:           "Random",
		SequentialPolicy:       "Sequential",
		TwoStageRandomPolicy:   "TwoStageRandom",
	}
	policyByName = map[string]PolicyName{
		"WorstElement":     WorstElementPolicy,
		"LossAccumulation": LossAccumulationPolicy,
		"WorstGrow":        WorstGrowPolicy,
		"Random":           RandomPolicy,
		"Sequential":       SequentialPolicy,
		"TwoStageRandom":   TwoStageRandomPolicy,
	}
)

// Compile-time interface checks.
var (
	_ fmt.Stringer             = PolicyName(0)
	_ json.Marshaler           = PolicyName(0)
	_ json.Unmarshaler         = (*PolicyName)(nil)
	_ encoding.TextMarshaler   = PolicyName(0)
	_ encoding.TextUnmarshaler = (*PolicyName)(nil)
)

func (n PolicyName) isValid() bool {
	return n >= WorstElementPolicy && n <= TwoStageRandomPolicy
}

// String returns the policy name, e.g. "WorstElement". For invalid
// values it returns "PolicyName(n)".
func (n PolicyName) String() string {
	if n.isValid() {
		return policyNames[n]
	}
	return fmt.Sprintf("PolicyName(%d)", int(n))
}

// MarshalText implements encoding.TextMarshaler.
func (n PolicyName) MarshalText() ([]byte, error) {
	if !n.isValid() {
		return nil, fmt.Errorf("sift: invalid policy name: %d", int(n))
	}
	return []byte(policyNames[n]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *PolicyName) UnmarshalText(text []byte) error {
	v, ok := policyByName[string(text)]
	if !ok {
		return fmt.Errorf("sift: invalid policy name: %q", text)
	}
	*n = v
	return nil
}

// MarshalJSON implements json.Marshaler. PolicyName serializes as a JSON string.
func (n PolicyName) MarshalJSON() ([]byte, error) {
	text, err := n.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler. Expects a JSON string.
func (n *PolicyName) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("sift: invalid policy name: %s", data)
	}
	return n.UnmarshalText([]byte(s))
}

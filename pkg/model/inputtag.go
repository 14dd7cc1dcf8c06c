package model

import (
	"fmt"
	"strings"
)

// DefaultTriggerResults is the conventional location of the HLT trigger results.
var DefaultTriggerResults = InputTag{Label: "TriggerResults", Process: "HLT"}

// InputTag names a product by producer label, instance and process,
// written as "label:instance:process". Trailing parts may be omitted.
type InputTag struct {
	Label    string
	Instance string
	Process  string
}

// ParseInputTag parses the "label:instance:process" form.
func ParseInputTag(s string) (InputTag, error) {
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return InputTag{}, fmt.Errorf("input tag %q has more than three parts", s)
	}
	if parts[0] == "" {
		return InputTag{}, fmt.Errorf("input tag %q has an empty label", s)
	}
	tag := InputTag{Label: parts[0]}
	if len(parts) > 1 {
		tag.Instance = parts[1]
	}
	if len(parts) > 2 {
		tag.Process = parts[2]
	}
	return tag, nil
}

func (t InputTag) String() string {
	switch {
	case t.Process != "":
		return t.Label + ":" + t.Instance + ":" + t.Process
	case t.Instance != "":
		return t.Label + ":" + t.Instance
	default:
		return t.Label
	}
}

// UnmarshalText lets InputTag be used directly in YAML and env configuration.
func (t *InputTag) UnmarshalText(text []byte) error {
	tag, err := ParseInputTag(string(text))
	if err != nil {
		return err
	}
	*t = tag
	return nil
}

// MarshalText is the inverse of UnmarshalText.
func (t InputTag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

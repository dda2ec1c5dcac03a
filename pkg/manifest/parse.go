package manifest

import (
	"fmt"
	"strings"
)

// ParseLabel parses the "key" or "key=value" label grammar used throughout
// the generated manifest fixtures.
func ParseLabel(s string) (Label, error) {
	name, value, found := strings.Cut(s, "=")
	if name == "" {
		return Label{}, fmt.Errorf("label %q: name must not be empty", s)
	}
	if !found {
		return Label{Name: name}, nil
	}
	return Label{Name: name, Value: &value}, nil
}

// String renders the label back to its wire grammar.
func (l Label) String() string {
	if l.Value == nil {
		return l.Name
	}
	return l.Name + "=" + *l.Value
}

// ParseEnvVar parses the "KEY=value" grammar manifests use for default
// environment entries.
func ParseEnvVar(s string) (EnvVar, error) {
	name, value, found := strings.Cut(s, "=")
	if name == "" {
		return EnvVar{}, fmt.Errorf("env %q: name must not be empty", s)
	}
	if !found {
		return EnvVar{Name: name}, nil
	}
	return EnvVar{Name: name, Value: &value}, nil
}

// String renders the env var back to its wire grammar.
func (e EnvVar) String() string {
	if e.Value == nil {
		return e.Name
	}
	return e.Name + "=" + *e.Value
}

package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FlexibleDate is a custom time type that can unmarshal RFC3339, "YYYY-MM-DD" and "YYYY-MM" formats
type FlexibleDate struct {
	time.Time
}

var flexibleLayouts = []string{time.RFC3339, "2006-01-02", "2006-01"}

// ParseFlexibleDate parses s using the first layout that accepts it
func ParseFlexibleDate(s string) (FlexibleDate, error) {
	s = strings.TrimSpace(s)
	for _, layout := range flexibleLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return FlexibleDate{Time: t.UTC()}, nil
		}
	}
	return FlexibleDate{}, fmt.Errorf("unrecognized date %q", s)
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (f *FlexibleDate) UnmarshalJSON(b []byte) error {
	d, err := ParseFlexibleDate(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*f = d
	return nil
}

// MarshalJSON implements the json.Marshaler interface.
func (f FlexibleDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Time.Format("2006-01-02"))
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (f *FlexibleDate) UnmarshalYAML(value *yaml.Node) error {
	d, err := ParseFlexibleDate(value.Value)
	if err != nil {
		return err
	}
	*f = d
	return nil
}

package model

import "fmt"

// Section is a named range of the position sequence. Sections are derived
// from the configured sizes on every read and never stored.
type Section int

const (
	SectionMain Section = iota
	SectionExtended
	SectionLegacy
)

func (s Section) String() string {
	switch s {
	case SectionMain:
		return "main"
	case SectionExtended:
		return "extended"
	default:
		return "legacy"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Section) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Section) UnmarshalText(text []byte) error {
	switch string(text) {
	case "main":
		*s = SectionMain
	case "extended":
		*s = SectionExtended
	case "legacy":
		*s = SectionLegacy
	default:
		return fmt.Errorf("unknown section %q", text)
	}
	return nil
}

// Classify places position into a section for the given sizes.
func Classify(position *int, listSize, extendedListSize int) Section {
	switch {
	case position == nil || *position > extendedListSize:
		return SectionLegacy
	case *position > listSize:
		return SectionExtended
	default:
		return SectionMain
	}
}

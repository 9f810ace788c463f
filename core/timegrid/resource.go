package timegrid

import (
	"fmt"
	"strings"
)

// Resource identifies a site that can host observations.
type Resource int

const (
	GN Resource = iota
	GS
	// Both is only meaningful as an observation affinity.
	Both
)

func (r Resource) String() string {
	switch r {
	case GN:
		return "GN"
	case GS:
		return "GS"
	case Both:
		return "Both"
	default:
		return fmt.Sprintf("Resource(%d)", int(r))
	}
}

// Accepts reports whether an observation with affinity r may use a slot on site.
func (r Resource) Accepts(site Resource) bool {
	return r == Both || r == site
}

// MarshalText implements encoding.TextMarshaler.
func (r Resource) MarshalText() ([]byte, error) {
	if r < GN || r > Both {
		return nil, fmt.Errorf("unknown resource %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Resource) UnmarshalText(b []byte) error {
	res, err := ParseResource(string(b))
	if err != nil {
		return err
	}
	*r = res
	return nil
}

// ParseResource converts a site name into a Resource.
func ParseResource(s string) (Resource, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gn", "north", "r0":
		return GN, nil
	case "gs", "south", "r1":
		return GS, nil
	case "both", "":
		return Both, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownResource, s)
	}
}

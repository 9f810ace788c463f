// Package dataset reads, writes and generates scheduling inputs: a slot grid
// description and the observations competing for it.
package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/obsched/core/observation"
	"github.com/kilianp07/obsched/core/priority"
	"github.com/kilianp07/obsched/core/timegrid"
)

// ErrUnsupportedFormat is returned for files that are neither YAML nor JSON.
var ErrUnsupportedFormat = errors.New("unsupported dataset format")

// DefaultSlotLength is used when a grid omits slot_length.
const DefaultSlotLength = 300 * time.Second

// Duration accepts either a Go duration string ("15m") or a number of seconds.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func parseDuration(s string) (Duration, error) {
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return Duration(v), nil
}

func secondsDuration(sec float64) Duration {
	return Duration(sec * float64(time.Second))
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	switch n.Tag {
	case "!!int", "!!float":
		var sec float64
		if err := n.Decode(&sec); err != nil {
			return err
		}
		*d = secondsDuration(sec)
		return nil
	default:
		v, err := parseDuration(n.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		*d = v
		return nil
	}
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*d = secondsDuration(v)
	case string:
		p, err := parseDuration(v)
		if err != nil {
			return err
		}
		*d = p
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

// GridSpec describes the slot grid.
type GridSpec struct {
	SlotLength       Duration `json:"slot_length,omitempty" yaml:"slot_length,omitempty"`
	SlotsPerResource int      `json:"slots_per_resource" yaml:"slots_per_resource"`
	// Resources defaults to GN then GS.
	Resources []string `json:"resources,omitempty" yaml:"resources,omitempty"`
}

// ObservationSpec is one observation. Starts lists candidate slots of
// quality 1; Candidates carries explicit qualities. Both may be combined.
type ObservationSpec struct {
	Name       string          `json:"name,omitempty" yaml:"name,omitempty"`
	Band       int             `json:"band" yaml:"band"`
	Required   Duration        `json:"required" yaml:"required"`
	Allocated  Duration        `json:"allocated,omitempty" yaml:"allocated,omitempty"`
	Used       Duration        `json:"used,omitempty" yaml:"used,omitempty"`
	Affinity   string          `json:"affinity,omitempty" yaml:"affinity,omitempty"`
	Starts     []int           `json:"starts,omitempty" yaml:"starts,omitempty,flow"`
	Candidates []CandidateSpec `json:"candidates,omitempty" yaml:"candidates,omitempty"`
}

// CandidateSpec is a start slot with an optional quality, 1 when omitted.
type CandidateSpec struct {
	Slot    int      `json:"slot" yaml:"slot"`
	Quality *float64 `json:"quality,omitempty" yaml:"quality,omitempty"`
}

// Candidate builds a CandidateSpec with an explicit quality.
func Candidate(slot int, quality float64) CandidateSpec {
	return CandidateSpec{Slot: slot, Quality: &quality}
}

// Expectation is the known optimum of a scenario.
type Expectation struct {
	Score       float64  `json:"score" yaml:"score"`
	Unscheduled []string `json:"unscheduled,omitempty" yaml:"unscheduled,omitempty,flow"`
}

// File is a complete scheduling input.
type File struct {
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// LenientCandidates asks the pipeline to drop invalid starts.
	LenientCandidates bool              `json:"lenient_candidates,omitempty" yaml:"lenient_candidates,omitempty"`
	Grid              GridSpec          `json:"grid" yaml:"grid"`
	Observations      []ObservationSpec `json:"observations" yaml:"observations"`
	Expect            *Expectation      `json:"expect,omitempty" yaml:"expect,omitempty"`
}

// FormatFromPath returns "yaml" or "json" from a file extension.
func FormatFromPath(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return "yaml", nil
	case ".json":
		return "json", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Load reads a dataset file, choosing the decoder from its extension.
func Load(path string) (*File, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	f, err := Decode(fh, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Decode reads a dataset in the given format. Unknown fields are rejected.
func Decode(r io.Reader, format string) (*File, error) {
	var f File
	switch strings.ToLower(format) {
	case "yaml", "yml":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case "json":
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return &f, nil
}

// Encode writes f in the given format.
func Encode(w io.Writer, format string, f *File) error {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(f); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(f)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// Save writes f to path, choosing the encoder from its extension.
func Save(path string, f *File) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := Encode(&buf, format, f); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// NewGrid builds the slot grid described by f.
func (f *File) NewGrid() (*timegrid.Grid, error) {
	slot := f.Grid.SlotLength.Std()
	if slot == 0 {
		slot = DefaultSlotLength
	}
	names := f.Grid.Resources
	if len(names) == 0 {
		names = []string{"GN", "GS"}
	}
	res := make([]timegrid.Resource, len(names))
	for i, n := range names {
		r, err := timegrid.ParseResource(n)
		if err != nil {
			return nil, err
		}
		res[i] = r
	}
	return timegrid.Build(slot, f.Grid.SlotsPerResource, res...)
}

// Build turns f into a grid and an observation set evaluated with model.
// Priorities are not computed; the scheduler does that before solving.
func (f *File) Build(model *priority.Model) (*timegrid.Grid, *observation.Set, error) {
	grid, err := f.NewGrid()
	if err != nil {
		return nil, nil, fmt.Errorf("grid: %w", err)
	}
	set := observation.NewSet(model)
	for i, o := range f.Observations {
		opts, err := o.options()
		if err == nil {
			_, err = set.Add(priority.Band(o.Band), o.candidates(), o.Required.Std(), opts...)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("observation %d (%s): %w", i, o.Name, err)
		}
	}
	return grid, set, nil
}

func (o ObservationSpec) candidates() []observation.StartCandidate {
	out := make([]observation.StartCandidate, 0, len(o.Starts)+len(o.Candidates))
	for _, s := range o.Starts {
		out = append(out, observation.TS(s))
	}
	for _, c := range o.Candidates {
		sc := observation.TS(c.Slot)
		if c.Quality != nil {
			sc.Quality = *c.Quality
		}
		out = append(out, sc)
	}
	return out
}

func (o ObservationSpec) options() ([]observation.AddOption, error) {
	affinity, err := timegrid.ParseResource(o.Affinity)
	if err != nil {
		return nil, err
	}
	opts := []observation.AddOption{observation.WithAffinity(affinity)}
	if o.Name != "" {
		opts = append(opts, observation.WithName(o.Name))
	}
	if o.Allocated != 0 {
		opts = append(opts, observation.WithAllocated(o.Allocated.Std()))
	}
	if o.Used != 0 {
		opts = append(opts, observation.WithUsed(o.Used.Std()))
	}
	return opts, nil
}

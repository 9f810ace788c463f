package config

import (
	"fmt"
	"strconv"

	"github.com/kilianp07/obsched/core/priority"
)

// ScheduleConfig tunes the scheduling run.
type ScheduleConfig struct {
	// LenientCandidates drops invalid start candidates instead of failing.
	LenientCandidates bool `json:"lenient_candidates"`
	// AckTimeoutSeconds bounds the wait for a site to acknowledge a
	// published plan. Zero skips the wait.
	AckTimeoutSeconds int `json:"ack_timeout_seconds"`
}

func (c *ScheduleConfig) SetDefaults() {}

func (c ScheduleConfig) Validate() error {
	if c.AckTimeoutSeconds < 0 {
		return fmt.Errorf("negative ack_timeout_seconds %d", c.AckTimeoutSeconds)
	}
	return nil
}

// PriorityConfig mirrors priority.Params with plain keys. Jumps are keyed by
// band number.
type PriorityConfig struct {
	Order      []int              `json:"order"`
	Jumps      map[string]float64 `json:"jumps"`
	Breakpoint float64            `json:"breakpoint"`
	Offset     float64            `json:"offset"`
	Spread     float64            `json:"spread"`
}

// SetDefaults uses the standard ranking when no order is configured.
func (c *PriorityConfig) SetDefaults() {
	if len(c.Order) > 0 {
		if c.Breakpoint == 0 {
			c.Breakpoint = priority.DefaultParams().Breakpoint
		}
		return
	}
	d := priority.DefaultParams()
	c.Order = make([]int, len(d.Order))
	for i, b := range d.Order {
		c.Order[i] = int(b)
	}
	c.Jumps = make(map[string]float64, len(d.Jumps))
	for b, j := range d.Jumps {
		c.Jumps[strconv.Itoa(int(b))] = j
	}
	c.Breakpoint, c.Offset, c.Spread = d.Breakpoint, d.Offset, d.Spread
}

// Params converts the section into model parameters.
func (c PriorityConfig) Params() (priority.Params, error) {
	p := priority.Params{
		Breakpoint: c.Breakpoint,
		Offset:     c.Offset,
		Spread:     c.Spread,
		Jumps:      make(map[priority.Band]float64, len(c.Jumps)),
	}
	for _, b := range c.Order {
		p.Order = append(p.Order, priority.Band(b))
	}
	for k, v := range c.Jumps {
		b, err := strconv.Atoi(k)
		if err != nil {
			return priority.Params{}, fmt.Errorf("jump key %q is not a band number", k)
		}
		p.Jumps[priority.Band(b)] = v
	}
	return p, nil
}

// Model builds the priority model.
func (c PriorityConfig) Model() (*priority.Model, error) {
	p, err := c.Params()
	if err != nil {
		return nil, err
	}
	return priority.New(p)
}

func (c PriorityConfig) Validate() error {
	_, err := c.Model()
	return err
}

// ReportConfig selects what the solve command prints and exports.
type ReportConfig struct {
	// Format is "text" or "json".
	Format string `json:"format"`
	// Observations adds the observation table to text reports.
	Observations bool `json:"observations"`
	// CSVPath and JSONPath, when set, receive the start orders.
	CSVPath  string `json:"csv_path"`
	JSONPath string `json:"json_path"`
}

func (c *ReportConfig) SetDefaults() {
	if c.Format == "" {
		c.Format = "text"
	}
}

func (c ReportConfig) Validate() error {
	if c.Format != "text" && c.Format != "json" {
		return fmt.Errorf("unknown format %s", c.Format)
	}
	return nil
}

// Package report formats a decoded plan for people: one timeline per site
// with its idle gaps, site usage and fitness, the observations left out and
// the observation table.
//
// Fitness is the duration-weighted priority of a site:
// Σ priority × required duration / site capacity.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/obsched/core/formulation"
	"github.com/kilianp07/obsched/core/ilp"
	"github.com/kilianp07/obsched/core/observation"
	"github.com/kilianp07/obsched/core/timegrid"
)

// Entry is one line of a site timeline: either an observation or an idle gap.
type Entry struct {
	Gap      bool          `json:"gap,omitempty"`
	Start    time.Duration `json:"start"`
	Length   time.Duration `json:"length"`
	Obs      int           `json:"obs"`
	Name     string        `json:"name,omitempty"`
	Required time.Duration `json:"required,omitempty"`
	Priority float64       `json:"priority,omitempty"`
	Quality  float64       `json:"quality,omitempty"`
}

// Site summarises the plan on one resource.
type Site struct {
	Resource timegrid.Resource `json:"resource"`
	Timeline []Entry           `json:"timeline"`
	Used     time.Duration     `json:"used"`
	Capacity time.Duration     `json:"capacity"`
	Usage    float64           `json:"usage"`
	Fitness  float64           `json:"fitness"`
}

// Summary is the presentation model of a plan.
type Summary struct {
	Score       float64    `json:"score"`
	Status      ilp.Status `json:"status"`
	Proven      bool       `json:"proven"`
	Sites       []Site     `json:"sites"`
	Unscheduled []string   `json:"unscheduled"`
}

// Summarize derives the per-site view of plan.
func Summarize(grid *timegrid.Grid, set *observation.Set, plan *formulation.Plan) (*Summary, error) {
	all := set.All()
	s := &Summary{Score: plan.Score, Status: plan.Status, Proven: plan.Proven()}
	slot := grid.SlotLength()
	capacity := grid.Horizon()

	bySite := make(map[timegrid.Resource][]formulation.Start)
	for _, st := range plan.Starts {
		if st.Obs < 0 || st.Obs >= len(all) {
			return nil, fmt.Errorf("%w: %d", observation.ErrUnknownObservation, st.Obs)
		}
		site, _, err := grid.Locate(st.Slot)
		if err != nil {
			return nil, err
		}
		bySite[site] = append(bySite[site], st)
	}

	for _, r := range grid.Resources() {
		starts := bySite[r]
		sort.Slice(starts, func(i, j int) bool { return starts[i].Slot < starts[j].Slot })
		site := Site{Resource: r, Capacity: capacity}
		weighted := make([]float64, 0, len(starts))
		var cursor time.Duration
		for _, st := range starts {
			_, off, _ := grid.Locate(st.Slot)
			at := time.Duration(off) * slot
			if at > cursor {
				site.Timeline = append(site.Timeline, Entry{Gap: true, Start: cursor, Length: at - cursor, Obs: -1})
			}
			o := all[st.Obs]
			span := time.Duration(st.Slots) * slot
			site.Timeline = append(site.Timeline, Entry{
				Start:    at,
				Length:   span,
				Obs:      st.Obs,
				Name:     o.Name,
				Required: o.Required,
				Priority: st.Priority,
				Quality:  st.Quality,
			})
			site.Used += o.Required
			weighted = append(weighted, st.Priority*o.Required.Seconds())
			cursor = at + span
		}
		if cursor < capacity {
			site.Timeline = append(site.Timeline, Entry{Gap: true, Start: cursor, Length: capacity - cursor, Obs: -1})
		}
		if capacity > 0 {
			site.Usage = float64(site.Used) / float64(capacity)
			if len(weighted) > 0 {
				site.Fitness = floats.Sum(weighted) / capacity.Seconds()
			}
		}
		s.Sites = append(s.Sites, site)
	}

	for _, id := range plan.Unscheduled {
		if id < 0 || id >= len(all) {
			return nil, fmt.Errorf("%w: %d", observation.ErrUnknownObservation, id)
		}
		s.Unscheduled = append(s.Unscheduled, all[id].Name)
	}
	return s, nil
}

type styles struct {
	heading lipgloss.Style
	gap     lipgloss.Style
	warn    lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		heading: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")),
		gap:     r.NewStyle().Foreground(lipgloss.Color("#999999")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true),
	}
}

var siteNames = map[timegrid.Resource]string{
	timegrid.GN: "Gemini North",
	timegrid.GS: "Gemini South",
}

// Write renders s as text. Colours are used only when w is a terminal.
func Write(w io.Writer, s *Summary) error {
	st := newStyles(w)
	var b strings.Builder
	fmt.Fprintf(&b, "%s %.3f (%s)\n", st.heading.Render("Final score:"), s.Score, s.Status)
	if !s.Proven {
		b.WriteString(st.warn.Render("Score is a lower bound: optimality was not proven.") + "\n")
	}
	for _, site := range s.Sites {
		name := siteNames[site.Resource]
		if name == "" {
			name = site.Resource.String()
		}
		b.WriteString("\n" + st.heading.Render(name+":") + "\n")
		for _, e := range site.Timeline {
			if e.Gap {
				b.WriteString("\t" + st.gap.Render(fmt.Sprintf("Gap of %v", e.Length)) + "\n")
				continue
			}
			fmt.Fprintf(&b, "\tAt %-8v %-15s required=%-8v priority=%7.3f quality=%.3f\n",
				e.Start, e.Name, e.Required, e.Priority, e.Quality)
		}
		fmt.Fprintf(&b, "\tUsage: %v of %v (%.1f%%), Fitness: %.3f\n",
			site.Used, site.Capacity, site.Usage*100, site.Fitness)
	}
	if len(s.Unscheduled) > 0 {
		b.WriteString("\n" + st.heading.Render("Unscheduled:") + " " + strings.Join(s.Unscheduled, ", ") + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteObservations renders the observation table: priorities and the start
// candidates of every observation, grouped by site. Priorities must be
// current.
func WriteObservations(w io.Writer, grid *timegrid.Grid, set *observation.Set) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "NAME", "BAND", "REQUIRED", "PRIORITY", "AFFINITY", "STARTS")
	per := grid.SlotsPerResource()
	for id, o := range set.All() {
		t.Row(
			fmt.Sprint(id),
			o.Name,
			fmt.Sprint(int(o.Band)),
			o.Required.String(),
			fmt.Sprintf("%.3f", o.Priority),
			o.Affinity.String(),
			formatCandidates(grid, per, o.Candidates),
		)
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

func formatCandidates(grid *timegrid.Grid, per int, cands []observation.StartCandidate) string {
	parts := make([]string, 0, len(cands))
	prev := -1
	for _, c := range cands {
		site, off, err := grid.Locate(c.Slot)
		if err != nil {
			parts = append(parts, fmt.Sprintf("?%d", c.Slot))
			continue
		}
		block := c.Slot / per
		if prev >= 0 && block != prev {
			parts = append(parts, "|")
		}
		prev = block
		parts = append(parts, fmt.Sprintf("%s%d(%g)", site, off, c.Quality))
	}
	return strings.Join(parts, " ")
}

package timegrid

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrIndexOutOfRange is returned when a slot index falls outside the grid.
	ErrIndexOutOfRange = errors.New("slot index out of range")
	// ErrUnknownResource is returned for resources that are not part of the grid.
	ErrUnknownResource = errors.New("unknown resource")
	// ErrInvalidGrid is returned by Build for unusable parameters.
	ErrInvalidGrid = errors.New("invalid grid")
)

// TimeSlot is a single slot on one resource, starting at an offset from the
// beginning of the horizon and lasting the grid's slot length.
type TimeSlot struct {
	Resource Resource      `json:"resource"`
	Start    time.Duration `json:"start"`
}

// Grid is the immutable ordered sequence of slots for every resource.
type Grid struct {
	slotLength       time.Duration
	slotsPerResource int
	resources        []Resource
	ordinal          map[Resource]int
	slots            []TimeSlot
}

// Build creates slotsPerResource slots of slotLength for each resource, in
// the order given.
func Build(slotLength time.Duration, slotsPerResource int, resources ...Resource) (*Grid, error) {
	if slotLength <= 0 {
		return nil, fmt.Errorf("%w: slot length must be positive, got %v", ErrInvalidGrid, slotLength)
	}
	if slotsPerResource < 0 {
		return nil, fmt.Errorf("%w: negative slot count %d", ErrInvalidGrid, slotsPerResource)
	}
	if len(resources) == 0 {
		return nil, fmt.Errorf("%w: no resources", ErrInvalidGrid)
	}
	g := &Grid{
		slotLength:       slotLength,
		slotsPerResource: slotsPerResource,
		resources:        make([]Resource, 0, len(resources)),
		ordinal:          make(map[Resource]int, len(resources)),
		slots:            make([]TimeSlot, 0, len(resources)*slotsPerResource),
	}
	for _, r := range resources {
		if r != GN && r != GS {
			return nil, fmt.Errorf("%w: %v cannot hold slots", ErrInvalidGrid, r)
		}
		if _, dup := g.ordinal[r]; dup {
			return nil, fmt.Errorf("%w: duplicate resource %v", ErrInvalidGrid, r)
		}
		g.ordinal[r] = len(g.resources)
		g.resources = append(g.resources, r)
		for i := 0; i < slotsPerResource; i++ {
			g.slots = append(g.slots, TimeSlot{Resource: r, Start: time.Duration(i) * slotLength})
		}
	}
	return g, nil
}

// SlotLength returns the duration shared by every slot.
func (g *Grid) SlotLength() time.Duration { return g.slotLength }

// SlotsPerResource returns the number of slots on each resource.
func (g *Grid) SlotsPerResource() int { return g.slotsPerResource }

// Len returns the total number of slots across all resources.
func (g *Grid) Len() int { return len(g.slots) }

// Horizon is the schedulable time on a single resource.
func (g *Grid) Horizon() time.Duration {
	return time.Duration(g.slotsPerResource) * g.slotLength
}

// Resources returns the grid resources in ordinal order.
func (g *Grid) Resources() []Resource {
	out := make([]Resource, len(g.resources))
	copy(out, g.resources)
	return out
}

// Slots returns a copy of the ordered slot sequence.
func (g *Grid) Slots() []TimeSlot {
	out := make([]TimeSlot, len(g.slots))
	copy(out, g.slots)
	return out
}

// Slot returns the slot at a global index.
func (g *Grid) Slot(global int) (TimeSlot, error) {
	if global < 0 || global >= len(g.slots) {
		return TimeSlot{}, fmt.Errorf("%w: global index %d not in [0, %d)", ErrIndexOutOfRange, global, len(g.slots))
	}
	return g.slots[global], nil
}

// SlotAt returns the index-th slot of resource r.
func (g *Grid) SlotAt(r Resource, index int) (TimeSlot, error) {
	global, err := g.GlobalIndex(r, index)
	if err != nil {
		return TimeSlot{}, err
	}
	return g.slots[global], nil
}

// GlobalIndex converts a resource-local offset into a global slot index.
func (g *Grid) GlobalIndex(r Resource, index int) (int, error) {
	ord, ok := g.ordinal[r]
	if !ok {
		return 0, fmt.Errorf("%w: %v", ErrUnknownResource, r)
	}
	if index < 0 || index >= g.slotsPerResource {
		return 0, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, g.slotsPerResource)
	}
	return ord*g.slotsPerResource + index, nil
}

// IndexOf is the inverse of SlotAt: it returns the global index of the slot
// of resource r beginning at start.
func (g *Grid) IndexOf(r Resource, start time.Duration) (int, error) {
	if start < 0 || start%g.slotLength != 0 {
		return 0, fmt.Errorf("%w: %v is not a slot boundary", ErrIndexOutOfRange, start)
	}
	return g.GlobalIndex(r, int(start/g.slotLength))
}

// Locate splits a global index into its resource and local offset.
func (g *Grid) Locate(global int) (Resource, int, error) {
	if global < 0 || global >= len(g.slots) {
		return 0, 0, fmt.Errorf("%w: global index %d not in [0, %d)", ErrIndexOutOfRange, global, len(g.slots))
	}
	return g.resources[global/g.slotsPerResource], global % g.slotsPerResource, nil
}

// BlockEnd returns the exclusive global end index of the resource block that
// contains global. A run starting at global must end at or before it.
func (g *Grid) BlockEnd(global int) (int, error) {
	if global < 0 || global >= len(g.slots) {
		return 0, fmt.Errorf("%w: global index %d not in [0, %d)", ErrIndexOutOfRange, global, len(g.slots))
	}
	return (global/g.slotsPerResource + 1) * g.slotsPerResource, nil
}

// Package timegrid partitions the schedulable horizon of each site into
// fixed-length, non-overlapping slots and maps them to global indices.
//
// Slots are grouped by resource in the order the resources were given to
// Build: the global index of a slot is ordinal*slotsPerResource + offset.
package timegrid

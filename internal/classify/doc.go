// Package classify assigns ordering tiers and effective dates to records and
// compares records of one participant for processing order.
//
// Tiers are plain strings ordered inversely: a record of tier "tier3" is
// processed before one of tier "tier1". New tiers can be slotted in later
// without renumbering existing ones.
//
// The comparator is deliberately not a total order. Two records of the same
// tier and date where exactly one has the pinned datatype are incomparable:
// neither is less than the other. Compare returns an explicit Ordering so
// callers cannot mistake that case for equality.
package classify

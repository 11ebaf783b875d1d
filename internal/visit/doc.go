// Package visit defines the data model shared by the validation scheduler.
//
// A Participant owns zero or more Records. Each Record is one submitted visit
// or document of a given Datatype, ordered by its effective date. QC outcomes
// are kept per validator gear in a QCStatus map and rolled up by package qc.
//
// A ValidationRequest is the transient unit of work: a datatype and
// participant plus a Selector that is either an explicit list of record ids
// or a cutoff (operator and dates).
package visit

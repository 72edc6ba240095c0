// Package aggregates defines domain-facing aggregate contracts.
//
// Contracts here describe the write boundaries of the quiz lifecycle: every
// status change, stage reservation and batch save is one short transaction
// owned by the aggregate implementation.
package aggregates

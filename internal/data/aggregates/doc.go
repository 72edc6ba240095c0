// Package aggregates implements the domain aggregate contracts on gorm.
//
// Every write runs through executeWrite: one short transaction at the
// configured isolation level, retried on serialization failures. Stage code
// performs its slow remote calls between two such writes, never inside one.
package aggregates

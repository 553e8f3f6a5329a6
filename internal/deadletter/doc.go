// Package deadletter bounds the blast radius of a poison record. After the
// retry budget is spent the record is parked in a sink with its failure
// history and the partition's offset still advances, so one bad record never
// stalls the records behind it.
package deadletter

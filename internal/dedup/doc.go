// Package dedup turns at-least-once redelivery into exactly-once effects.
// The contract is admit-then-confirm: the executor admits a record id before
// running its handler and confirms only after the handler succeeds. Confirmed
// ids are skipped on redelivery; unconfirmed ids run again.
package dedup

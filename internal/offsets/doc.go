// Package offsets persists per-group consume positions. The stored value is
// the resume offset: the next record a group should see for a partition, not
// the last one it processed. Durable commits live in the shared Pebble state
// database; a memory variant backs tests and ephemeral pipelines.
package offsets

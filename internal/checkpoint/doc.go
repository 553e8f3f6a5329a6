// Package checkpoint snapshots a group's resume offsets to a JSON file so a
// restart can skip the offset store scan. Snapshots are written via temp file
// and atomic rename with the previous one kept as a fallback; losing both only
// costs a slower start, never correctness.
package checkpoint

// Package executor turns a partitioned log into ordered, exactly-once-effect
// processing. Each partition runs as its own sequential pipeline; a slot pool
// bounds how many partitions work at once. Per record the flow is dedup
// admission, handler attempt under a timeout, then confirm and offset commit
// on success. Failures retry with backoff and are parked in the dead-letter
// sink once the budget is spent, with the offset still committed so the
// partition never stalls.
package executor

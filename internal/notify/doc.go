// Package notify carries stage-change notifications from the API to the
// candidate's inbox.
//
// The Dispatcher renders a StageEvent into a Task and pushes it onto a Queue
// without ever failing the caller. A Worker pops tasks, sends them through a
// Transport, and settles each one: ack on success, delayed retry with
// exponential backoff on a transient failure, dead letter when attempts run
// out or the failure is permanent.
//
// Two queues implement the same contract. RedisQueue is durable and gives
// at-least-once delivery across processes; MemoryQueue is for tests and
// single-process development and loses tasks on exit.
package notify

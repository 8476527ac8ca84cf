// Package scheduler abstracts the delayed-task facility used for purchase
// retries.
package scheduler

import (
	"context"
	"fmt"
	"time"
)

// TaskPurchaseRetry is fired when a scheduled purchase retry comes due.
const TaskPurchaseRetry = "insurance.purchase.retry"

// Task is one scheduled unit of work.
type Task struct {
	// Name selects the handler; currently only TaskPurchaseRetry exists.
	Name string `json:"name"`
	// OrderID is the task payload.
	OrderID string `json:"order_id"`
	// Handle deduplicates: scheduling a handle that already has a pending
	// task is a no-op. Each retry generation gets its own handle.
	Handle string `json:"handle"`
	// RunAt is the earliest time the task may fire.
	RunAt time.Time `json:"run_at"`
}

// Scheduler schedules tasks to run no earlier than a future time.
type Scheduler interface {
	// ScheduleAt enqueues the task. A task with the same handle already
	// pending makes this a no-op.
	ScheduleAt(ctx context.Context, task Task) error
	// IsAvailable reports whether the facility can accept tasks right now.
	// The purchase engine degrades to no-retries when it cannot.
	IsAvailable(ctx context.Context) bool
}

// PurchaseHandle is the dedup handle for the first scheduled retry of an
// order, unique per order so a duplicate enqueue cannot race itself.
func PurchaseHandle(orderID string) string {
	return "insurance:purchase:" + orderID
}

// RetryHandle is the dedup handle for retry generation n of an order.
func RetryHandle(orderID string, generation int) string {
	return fmt.Sprintf("insurance:purchase:%s:retry:%d", orderID, generation)
}

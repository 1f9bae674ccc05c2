// Package service implements the task lifecycle operations: creation,
// state-machine transitions, assignment and partial updates, plus their
// recurrence and notification side effects.
package service

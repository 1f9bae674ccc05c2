// Package store provides abstractions and contracts for data persistence.
package store

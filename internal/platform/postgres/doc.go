// Package postgres provides PostgreSQL implementations of the store
// interfaces, using hand-written SQL over the pgx stdlib driver.
package postgres

// Package sqlitex bridges the blocking sqlite3 driver connection into a
// non-blocking, ordered, cancellable call surface, and pools a bounded set
// of such connections.
//
// Every Conn owns exactly one raw driver handle and one dedicated worker
// goroutine; all database calls run on that worker in strict submission
// order. The Pool bounds how many Conns exist at once and recycles them by
// age. The Engine facade ties a Pool to an explicit Dialect value.
package sqlitex

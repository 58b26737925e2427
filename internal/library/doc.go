// Package library owns the books open in one process and remembers
// recently used books in a SQLite history.
//
// There is no global registry: callers hold a Library, open and create
// books through it, and close them through it.
package library

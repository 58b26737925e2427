// Package picture holds the raster variants of one page and rebuilds them on
// demand.
//
// The variants form a small dependency graph:
//
//	BASE -> BINARY -> GAUSSIAN
//	              \-> MEDIAN -> NO_STAFF
//
// Every variant may be evicted from the in-memory cache; requesting it again
// recomputes it from its dependency. BASE and BINARY are also stored in the
// book archive, so they survive eviction of the whole sheet.
package picture

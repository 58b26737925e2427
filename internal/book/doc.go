// Package book manages a work made of page stubs bound to one archive file.
//
// A Book owns an ordered list of Stubs, one per input page. A Stub is
// always in memory and records which pipeline steps are done; the heavy
// sheet behind it is built from the input image, loaded from the archive,
// or rebuilt from stored rasters only when a step needs it, and is dropped
// again by Swap.
//
// Store writes modified stubs into the bound archive, or performs a save-as
// that carries unmodified sheet folders over byte-for-byte. ReachStep runs a
// target step across stubs, in parallel when configured, and keeps going
// when a stub fails.
package book

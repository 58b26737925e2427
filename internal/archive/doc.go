// Package archive stores a book as a single zip container.
//
// A Container exposes the zip members as a slash-separated tree. Each sheet
// owns one top-level folder ("sheet#3/"), and book-level data lives at the
// root. Members can be read, staged for writing, removed, or copied from
// another container without recompression. Nothing touches the file on disk
// until Close, which writes a complete new file and renames it into place.
//
// A container opened for writing holds an exclusive advisory lock on
// "<path>.lock" so two processes never rewrite the same book concurrently.
package archive

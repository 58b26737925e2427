// Package main hosts the omrbook CLI.
//
// Each command opens one book through the library, acts on it, and closes
// it before returning: process runs sheets up to a step and optionally
// saves, save-as copies a stored book, status and scores report without
// running anything, and history lists the books recently touched. Heavy
// lifting stays in the internal packages; commands only parse flags and
// render results.
package main

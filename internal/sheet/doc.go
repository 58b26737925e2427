// Package sheet holds the in-memory state of one page and the contract that
// recognition steps implement to act on it.
//
// A Sheet exists only while its stub is materialized. Its document is stored
// as "sheet#N/sheet#N.json" next to the page rasters.
package sheet

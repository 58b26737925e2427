// Package workpool bounds the goroutines that run step bodies and fans batch
// work out over sheets.
package workpool

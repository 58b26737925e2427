// Package raster holds the pixel-level building blocks used by sheet
// pictures: 8-bit gray rasters, compact run tables for binary images with an
// xz-compressed persisted form, binarization filters, smoothing filters, and
// glyph erasure. Every operation is pure and deterministic, so derived images
// can be dropped and recomputed at any time.
package raster

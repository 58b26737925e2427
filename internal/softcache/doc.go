// Package softcache provides a bounded, evictable memo for values that can
// always be recomputed, such as derived raster images. It stands in for weak
// references: entries leave under capacity pressure or on request, and an
// optional hook observes each departure.
package softcache

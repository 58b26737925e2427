// Package document reads and writes the versioned JSON documents stored in a
// book archive. Older documents are upgraded field by field through declared
// migrations before being bound to the current Go type, and the caller learns
// whether an upgrade happened so the document can be written back.
package document

// Package preflight provides readiness checks for the filesystem paths a book
// is read from and saved to.
//
// The book runs CheckSaveTarget before writing a container so a doomed save
// fails before the previous file is moved to a backup. "omrbook config
// validate" uses RunAll to display folder health.
package preflight

// Package stepexec runs one pipeline step body on a worker goroutine under a
// timeout and classifies its outcome.
package stepexec

// Package fileutil holds small file helpers shared by book persistence:
// backup naming, extension splitting, and path comparison.
package fileutil

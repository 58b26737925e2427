// Package textutil derives file-safe names from user-supplied paths.
package textutil

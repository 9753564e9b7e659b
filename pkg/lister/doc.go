// Package lister turns a directory into the protocol entries that plugins
// decorate. It gathers file metadata with a bounded pool of goroutines and
// returns entries sorted by name.
package lister

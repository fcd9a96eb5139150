// Package main hosts the wastescan CLI entrypoint and command graph.
//
// The Cobra command tree classifies images against the backend, watches a
// drop folder, and inspects or maintains the local scan history and display
// settings. Confident results are also pushed to ntfy when a topic is set. Configuration resolution, store selection, and logging setup live
// in the shared command context so subcommands only deal with presentation.
package main

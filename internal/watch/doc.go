// Package watch classifies images dropped into a folder.
package watch

// Package gate turns a classification confidence into a celebrate decision
// and the matching accessibility announcement.
package gate

// Package testutil contains helpers shared by tests: a recording handler
// with a fluent builder, a shared call log for asserting chain order, and a
// logger that captures entries. They are not intended for production usage.
package testutil

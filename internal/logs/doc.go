// Package logs reads worker log files for the CLI: the last lines of a file
// and, when following, lines appended afterwards.
package logs

// Package logs reads sage.log for the `sage logs` command.
//
// Tail returns the last N lines plus the byte offset after them; passing the
// offset back with Follow set polls for appended lines until the wait elapses.
// Filter narrows lines to one queue item for both the console and JSON log
// formats.
package logs

// Package history records what the user ran: an event log of every parsed
// command line and a count of how often each directory was visited.
package history

// Package session manages per-connection deck sessions. It handles session
// creation, lookup, expiration, and storage of the viewer's current filter
// state backed by Redis.
package session

// Package session owns the authentication session lifecycle: recovery
// at startup, adoption of backend-pushed events, the sealed credential
// store, and the facade the local API drives for user-initiated
// operations.
//
// One session is current at a time. All state lives in the Manager and
// changes under its lock; concurrent writers resolve last-write-wins,
// with the single exception that a session observed expired is never
// adopted. Recovery runs exactly once per process and always terminates
// in a usable state, so the UI is never left waiting.
package session

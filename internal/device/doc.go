// Package device derives the device fingerprint and performs
// device-trust bookkeeping against the backend.
//
// The fingerprint is a low-entropy, stable identifier hashed from
// environment attributes (hostname, platform, timezone, locale). It is
// a heuristic correlation key for the backend's device-trust records,
// never a security boundary: two machines can collide and a user can
// trivially forge it.
//
// Trust bookkeeping runs as a detached background task after sign-in.
// Its failures are logged and dropped; the session state machine never
// observes them.
package device

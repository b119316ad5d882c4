// Package profile mirrors the backend's user_profiles rows locally:
// a read-through SQLite cache with a short freshness window, lazy
// provisioning for first sign-ins, and the role source the permission
// layer reads from.
package profile

// Package bridge mirrors session lifecycle events onto an MQTT broker.
//
// It is optional fleet plumbing: workbenches in a shop can report who is
// signed in where, and a supervisor tool can push a remote sign-out. The
// agent works identically with the bridge disabled, and bridge failures
// never affect the local session.
//
// Topic layout under the configured prefix (default "workbench"):
//
//	{prefix}/agent/{client_id}/status    retained agent online/offline
//	{prefix}/agent/{client_id}/session   retained session state snapshot
//	{prefix}/agent/{client_id}/event     auth events as they happen
//	{prefix}/agent/{client_id}/command   inbound commands (sign_out)
//
// Tokens are never published.
package bridge

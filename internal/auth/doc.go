// Package auth implements the role and permission model for the
// Workbench agent.
//
// Roles form a fixed total order (user < manager < admin). Permissions
// are never stored: they are derived from the role via a static mapping
// where each role inherits every permission granted at or below its
// rank. The cumulative lookup table is built once at package init, so
// permission checks are a map lookup rather than a union recomputed per
// call.
//
// The package also provides unverified JWT claim extraction. The agent
// never validates backend token signatures (it has no signing key);
// it only reads expiry and subject so that sessions can be judged
// stale-or-not locally.
package auth

package common

// AuthorizationHeader carries the bearer access token on API requests.
const AuthorizationHeader = "Authorization"

// MergedTag is attached to a record that was folded into another one
// during a user-confirmed merge. The record itself is archived, never
// deleted, so history stays auditable.
const MergedTag = "Merged"

// Package identity issues and retrieves identity records keyed by an access key.
//
// An Identity has a store-assigned numeric ID and an immutable access key
// produced by the accesskey generator. The package contains the Postgres
// gateway (connection passed per call) and the pool-backed PostgresStore.
//
// Schema precondition: access_key carries a unique constraint
// (uq_identities_access_key). Nothing here checks for an existing key before
// inserting; concurrent creates race at the store and the constraint decides.
package identity

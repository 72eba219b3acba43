// Package accesskey generates the access keys that identify an identity.
//
// Keys are five dash-separated groups of [A-Z0-9] with lengths 8-4-4-10-2
// (28 symbols, about 145 bits of entropy). They are meant to be read and typed
// by people: support tickets, recovery codes, operator consoles.
//
// The generator never checks uniqueness. The identity store's unique
// constraint on access_key is the only arbiter of collisions.
package accesskey

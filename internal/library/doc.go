// Package library is the write path of the catalog.
//
// Every write goes through Save: referenced entities are persisted and
// linked, the candidate is matched against the store, merged with what is
// already there, inserted, and one set event per changed field is appended
// to the operation log. All of it happens inside a single Store.Update, so
// a failure at any step leaves the store untouched.
package library

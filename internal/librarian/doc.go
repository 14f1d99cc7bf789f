// Package librarian gathers what local storage and remote providers know
// about an entity and reduces it to one record.
//
// Lookups fan out to every provider in parallel and combine the answers
// with the total merge, so the order in which providers respond never
// changes the result. A second pass re-queries the providers with what the
// first pass found, letting one provider use an identifier another one
// supplied.
package librarian

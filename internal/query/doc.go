// Package query describes ad-hoc queries over stored entity documents.
//
// A Query selects entities of one kind, optionally restricted to those
// linked to another entity, filtered by a predicate over the JSON
// document. Predicates form a sealed set so that backends can compile them
// exhaustively; see package querysql for the SQLite compiler.
//
// Paths are dotted field names as they appear in the JSON form of an
// entity, e.g. "title" or "ids.musicbrainz".
package query

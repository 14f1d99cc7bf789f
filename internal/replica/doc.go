// Package replica synchronizes a local catalog with its peers through a
// shared object store.
//
// A round pulls every peer snapshot, replays the events this replica has
// not seen under per-field last-writer-wins, pushes this replica's own
// snapshot and uploads the blobs its entities reference. There is no
// coordinator: replicas that keep running rounds against the same share
// converge on identical state and identical logs.
package replica

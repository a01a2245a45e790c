// Package vexfs implements a filesystem whose every mutation is a
// durable, ordered, replicated Event: writes classify into a property
// graph or a vector store as well as plain file content, every mutation
// is journaled and queryable, and graph/vector/filesystem state can be
// kept in sync across nodes through CRDT merge and Raft consensus.
//
// Mount is the entrypoint: it opens (or recovers) the event journal,
// starts the vector and graph subsystems, and wires them to a shared
// boundary router so every classified write ends up observable through
// the Query and Stream API.
package vexfs

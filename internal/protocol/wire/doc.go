// Package wire owns the hub-link wire format.
//
// Ownership boundary:
// - length-prefix frame encoding
// - stream reassembly into complete frames
//
// Every message on the socket is BE32(len(payload)) ++ payload. There is no
// magic number, checksum, or version byte; payload bytes are opaque to this
// package.
package wire

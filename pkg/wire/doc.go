// Package wire defines the envelope frames that carry control messages
// between an engine connection and the broker side of a channel.
//
// A frame is a CBOR map (RFC 8949) with integer keys, preceded by its
// length as a 4-byte big-endian unsigned integer:
//
//	+----------------+---------------------------+
//	| length (4, BE) | CBOR map {1: type, ...}   |
//	+----------------+---------------------------+
//
// Channels deliver inbound bytes in arbitrary chunks; FrameDecoder
// reassembles them into whole frames.
//
// # Nullable vs Absent
//
// Optional fields are pointers. An absent key leaves the field nil, which
// is distinct from an explicit zero (e.g. a subscription with no credit).
package wire

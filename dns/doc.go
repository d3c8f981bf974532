// Package dns
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// DNS wire format codec (RFC 1035).
//
// Provides:
//   - Encoder and Decoder: big-endian integers, byte blocks, character
//     strings and domain names with message compression
//   - Header, Question, RR with typed RDATA, Message
//   - Type, class, opcode and rcode tables
//
// Messages are built by packing fields in wire order and parsed by
// unpacking them in the same order; every Pack call has an Unpack mirror.
// Domain names are handled in dotted form without escape sequences.
package dns

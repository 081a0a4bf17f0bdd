// Package protocol implements the cshpke wire format: a small tagged packet
// (id, encoding, 32-bit length, payload) exchanged over a reliable stream,
// where the receiver answers every packet with a single acknowledgement
// byte before the sender continues.
package protocol

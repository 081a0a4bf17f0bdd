// Package cshpke provides HPKE-protected message channels whose cipher
// suite is negotiated per connection, together with a four-party key
// hierarchy that lets secondary nodes talk under keys delegated by a
// paired primary client and primary server.
//
// Node ties the pieces together: it listens on TCP or QUIC, dispatches
// every incoming connection by the role in its HELLO, keeps the pairings
// it has learned in a delegation registry, and dials out to pair, enroll
// or open a session.
package cshpke

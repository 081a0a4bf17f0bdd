// Package commands defines the cshpke CLI.
//
// Commands
//
//   - primary-server    Accept pairings, direct clients and secondary servers
//   - primary-client    Pair with a primary server, then serve secondary clients
//   - secondary-server  Enroll with the primary server, then accept secondary sessions
//   - secondary-client  Enroll with the primary client and send to a secondary server
//   - client            Open a direct session and send messages
//   - suites            List the cipher suites the configured catalog allows
//
// Every flag can also come from a config file (--config) or from the
// environment with the CSHPKE_ prefix.
package commands

// Package protocol owns the peer-to-peer test protocol carried in J1939 payloads.
//
// Ownership boundary:
// - command tags and control payload layout
// - j1939 frame codec (subpackage j1939)
// - test session engine (subpackage session)
package protocol

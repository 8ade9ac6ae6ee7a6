// Package session runs the test protocol over an adapter link: ping round trips,
// bulk transfers in either direction, the responder loop and the traffic logger.
//
// A Session only needs a Sender and the bus the sender's captures are published on,
// so two sessions on a simulated network can talk to each other in one process.
package session

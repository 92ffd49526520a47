// Package gnome implements the per-gnome agreement and neighbor-management
// engine of a swarm: the swarm-time/neighborhood/block state machine, the
// fast/slow/refreshed/new neighbor scheduler, round-boundary and confusion
// logic, the neighbor request/response protocol, and the message framing
// those components exchange.
//
// A gnome owns all of its state exclusively and talks to the rest of the
// world — other gnomes, the user-facing supervisor, the transport that
// materializes neighbors from sockets — only through channels carrying the
// types defined here.
package gnome

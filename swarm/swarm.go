// Package swarm is the per-swarm shell around a gnome.Gnome: it owns the
// swarm's name and id, the request/response channels a caller uses to
// talk to the gnome running inside it, and the cast-id registries that
// track which unicast/multicast/broadcast channel slots are in use —
// bookkeeping original_source's Swarm carries that never made it into
// spec.md's gnome-centric module list (SPEC_FULL.md §5).
package swarm

import (
	"context"
	"log/slog"

	"github.com/gnomeswarm/swarm/gnome"
)

// Swarm is the join point a caller uses to start one gnome participating
// in one swarm.
type Swarm struct {
	Name string
	Id   gnome.SwarmID

	Requests  chan gnome.Request
	Responses chan gnome.Response

	activeUnicasts   map[gnome.CastID]gnome.GnomeId
	activeMulticasts map[gnome.CastID]struct{}
	activeBroadcasts map[gnome.CastID]struct{}

	g *gnome.Gnome
}

// Join constructs the gnome that will run this swarm membership and
// wires its channels, grounded on original_source/src/swarm.rs's
// Swarm::join. It does not start the gnome; call Run for that.
func Join(name string, id gnome.SwarmID, gnomeId gnome.GnomeId, settings gnome.NetworkSettings, cfg gnome.Config, log *slog.Logger, metrics gnome.Metrics) *Swarm {
	requests := make(chan gnome.Request, 64)
	responses := make(chan gnome.Response, 64)

	s := &Swarm{
		Name:             name,
		Id:               id,
		Requests:         requests,
		Responses:        responses,
		activeUnicasts:   make(map[gnome.CastID]gnome.GnomeId),
		activeMulticasts: make(map[gnome.CastID]struct{}),
		activeBroadcasts: make(map[gnome.CastID]struct{}),
		g:                gnome.NewGnome(gnomeId, id, requests, responses, settings, cfg, log, metrics),
	}
	return s
}

// GnomeID returns the identity of the gnome running this swarm membership.
func (s *Swarm) GnomeID() gnome.GnomeId {
	return s.g.Id
}

// AddNeighbor enrolls a channel-backed neighbor before or during the run.
func (s *Swarm) AddNeighbor(n *gnome.Neighbor) {
	s.g.AddNeighbor(n)
}

// Run drives the underlying gnome's round engine until ctx is cancelled.
func (s *Swarm) Run(ctx context.Context) error {
	return s.g.Run(ctx)
}

func (s *Swarm) IsUnicastIDAvailable(id gnome.CastID) bool {
	_, taken := s.activeUnicasts[id]
	return !taken
}

func (s *Swarm) IsMulticastIDAvailable(id gnome.CastID) bool {
	_, taken := s.activeMulticasts[id]
	return !taken
}

func (s *Swarm) IsBroadcastIDAvailable(id gnome.CastID) bool {
	_, taken := s.activeBroadcasts[id]
	return !taken
}

// NextBroadcastID returns the smallest free broadcast CastID, or false if
// all 256 are in use.
func (s *Swarm) NextBroadcastID() (gnome.CastID, bool) {
	for id := 0; id <= 255; id++ {
		cid := gnome.CastID(id)
		if s.IsBroadcastIDAvailable(cid) {
			return cid, true
		}
	}
	return 0, false
}

// ReserveUnicast claims id for owner, returning gnome.ErrNoCastIDAvailable
// if it is already taken.
func (s *Swarm) ReserveUnicast(id gnome.CastID, owner gnome.GnomeId) error {
	if !s.IsUnicastIDAvailable(id) {
		return gnome.ErrNoCastIDAvailable
	}
	s.activeUnicasts[id] = owner
	return nil
}

// ReleaseUnicast frees id for reuse.
func (s *Swarm) ReleaseUnicast(id gnome.CastID) {
	delete(s.activeUnicasts, id)
}

// UnicastsCount and MulticastsCount report how many of each cast kind are
// currently active, for status reporting.
func (s *Swarm) UnicastsCount() int   { return len(s.activeUnicasts) }
func (s *Swarm) MulticastsCount() int { return len(s.activeMulticasts) }
func (s *Swarm) BroadcastsCount() int { return len(s.activeBroadcasts) }

// Command gnomesim wires a handful of gnomes together over in-process Go
// channels — standing in for the out-of-scope networking substrate — and
// drives one user-submitted proposal to commitment, printing the accepted
// block each gnome converges on.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gnomeswarm/swarm/config"
	"github.com/gnomeswarm/swarm/gnome"
	"github.com/gnomeswarm/swarm/metrics"
	"github.com/gnomeswarm/swarm/swarm"
)

var (
	configPath = flag.String("config", "", "path to a swarm config yaml file (optional)")
	gnomeCount = flag.Int("gnomes", 4, "number of in-process gnomes to wire into a ring")
	proposal   = flag.String("data", "hello swarm", "payload the first gnome proposes")
)

func main() {
	flag.Parse()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(); err != nil {
		slog.Error("gnomesim exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := gnome.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if *gnomeCount < 2 {
		return fmt.Errorf("gnomesim needs at least 2 gnomes, got %d", *gnomeCount)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ids := gnome.NewIdDispenser()
	m := metrics.New()
	swarms := make([]*swarm.Swarm, *gnomeCount)
	for i := range swarms {
		settings := gnome.DefaultNetworkSettings()
		settings.SetPort(uint16(20000 + i))
		swarms[i] = swarm.Join(fmt.Sprintf("sim-%d", i), gnome.SwarmID(1), ids.Next(), settings, cfg, slog.Default(), m)
	}
	wireRing(swarms)

	errs := make(chan error, len(swarms))
	for _, s := range swarms {
		go func(s *swarm.Swarm) { errs <- s.Run(ctx) }(s)
	}

	data, err := gnome.NewData([]byte(*proposal))
	if err != nil {
		return fmt.Errorf("build proposal: %w", err)
	}
	swarms[0].Requests <- gnome.Request{Kind: gnome.AddDataRequest, Proposal: data}

	timeout := time.After(10 * time.Second)
	committed := 0
	for committed < len(swarms) {
		select {
		case <-timeout:
			return fmt.Errorf("timed out waiting for %d gnomes to commit a block", len(swarms)-committed)
		case resp := <-swarms[committed].Responses:
			if resp.Kind == gnome.BlockResponse {
				fmt.Printf("gnome %d committed block %s (%s)\n", committed, resp.BlockID, resp.BlockBody)
				committed++
			}
		}
	}

	for _, s := range swarms {
		s.Requests <- gnome.Request{Kind: gnome.DisconnectRequest}
	}
	for range swarms {
		<-errs
	}
	return nil
}

// wireRing connects each swarm to its next neighbor in a ring, the
// minimal topology that still has every gnome reachable from every other
// within the default swarm diameter.
func wireRing(swarms []*swarm.Swarm) {
	n := len(swarms)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		aToB := make(chan gnome.Message, 64)
		bToA := make(chan gnome.Message, 64)
		swarms[i].AddNeighbor(gnome.NewNeighbor(gnomeIDOf(swarms[j]), bToA, aToB, gnome.SwarmTime(0)))
		swarms[j].AddNeighbor(gnome.NewNeighbor(gnomeIDOf(swarms[i]), aToB, bToA, gnome.SwarmTime(0)))
	}
}

func gnomeIDOf(s *swarm.Swarm) gnome.GnomeId {
	return s.GnomeID()
}

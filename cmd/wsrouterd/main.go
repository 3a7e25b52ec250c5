// The wsrouterd binary is the Wi-SUN FAN router node core: the IPv6
// Neighbor Discovery + RPL state machine that sits above an 802.15.4
// SUN PHY radio co-processor (spec.md §1). It wires together the
// neighbor cache, RPL engine, ICMPv6 engine and event scheduler, and
// drives them from an RCP bus transport.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/wisun-fan/wsrouterd/config"
	"github.com/wisun-fan/wsrouterd/iface"
	"github.com/wisun-fan/wsrouterd/neighbor"
	"github.com/wisun-fan/wsrouterd/rcpbus"
	"github.com/wisun-fan/wsrouterd/rpl"
	"github.com/wisun-fan/wsrouterd/sched"
	"github.com/wisun-fan/wsrouterd/stats"
	"github.com/wisun-fan/wsrouterd/store"
	"github.com/wisun-fan/wsrouterd/tstime/mono"
	"github.com/wisun-fan/wsrouterd/types/logger"
	"github.com/wisun-fan/wsrouterd/wsnet/addr"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("wsrouterd: %v", err)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logf := logger.Logf(func(format string, a ...any) {
		log.Printf(format, a...)
	})
	if cfg.LogJSON {
		logf = jsonLogf
	}

	eui64, err := addr.ParseEUI64(cfg.EUI64Hex)
	if err != nil {
		return fmt.Errorf("parsing --eui64: %w", err)
	}

	reg := prometheus.NewRegistry()
	statsReg := stats.NewRegistry(reg)

	nce := neighbor.NewCache(logf, cfg.BaseReachableMs, cfg.NeighborTableSize)

	var persist *store.Store
	if cfg.StorePath != "" {
		persist, err = store.Open(cfg.StorePath)
		if err != nil {
			return fmt.Errorf("opening neighbor-cache store %s: %w", cfg.StorePath, err)
		}
		defer persist.Close()
		if err := persist.Restore(nce, mono.Now()); err != nil {
			logf("wsrouterd: restoring neighbor-cache snapshot: %v", err)
		}
	}

	rplEngine := rpl.NewEngine(logf, eui64)
	bus := rcpbus.NewFake() // stand-in transport until a real RCP serial driver is wired
	loop := sched.NewLoop(logf)

	ctx := iface.New(logf, eui64, nce, rplEngine, bus, loop)
	ctx.PanID = cfg.PanID
	ctx.NetworkName = cfg.NetworkName

	ctx.OnPrimaryParentChange = func(parent addr.EUI64) {
		if parent.IsZero() {
			logf("wsrouterd: preferred parent lost")
			return
		}
		logf("wsrouterd: preferred parent now %s", parent)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gCtx := errgroup.WithContext(runCtx)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
	g.Go(func() error {
		select {
		case <-interrupt:
			logf("wsrouterd: shutting down")
			cancel()
		case <-gCtx.Done():
		}
		return nil
	})

	if cfg.MetricsAddr != "" {
		startMetricsServer(gCtx, g, cfg.MetricsAddr, reg, logf)
	}

	bindRCPBus(gCtx, g, loop, bus, ctx, statsReg, logf)
	bindPeriodicWork(loop, nce, rplEngine, logf)

	runErr := loop.Run(runCtx)
	cancel()
	waitErr := g.Wait()

	if persist != nil {
		if err := persist.Snapshot(nce); err != nil {
			logf("wsrouterd: snapshotting neighbor cache: %v", err)
		}
	}

	if runErr != nil && runCtx.Err() == nil {
		return runErr
	}
	return waitErr
}

// bindRCPBus translates the RCP bus's single Indications() channel
// into the scheduler's SourceRCP readiness source (spec §4.5's
// priority-1 dispatch source), dispatching received frames to the
// interface context and counting handler failures by taxonomy kind
// (spec §7). The pump goroutine is tracked by g so shutdown can wait
// for it to actually exit instead of leaking it at process teardown.
func bindRCPBus(ctx context.Context, g *errgroup.Group, loop *sched.Loop, bus rcpbus.Bus, ictx *iface.Context, statsReg *stats.Registry, logf logger.Logf) {
	ready := make(chan func(), 1)
	loop.Bind(sched.SourceRCP, ready)

	g.Go(func() error {
		indications := bus.Indications()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ind, ok := <-indications:
				if !ok {
					return nil
				}
				work := func() {
					switch {
					case ind.Rx != nil:
						srcEUI64 := addr.EUI64{} // the RCP firmware's frame header supplies this; opaque here
						if err := ictx.DeliverFrame(srcEUI64, ind.Rx.Frame); err != nil {
							statsReg.CountError(err)
							logf("wsrouterd: dropping inbound frame: %v", err)
						}
					case ind.Tx != nil:
						// Per-handle ACK-intent completion (spec §3's
						// AckIntent enum) is resolved by the neighbor
						// cache entry that originated the transmission;
						// nothing to do at this layer beyond logging
						// failures.
						if ind.Tx.Status != rcpbus.TxSuccess {
							logf("wsrouterd: tx handle %d failed: %v", ind.Tx.Handle, ind.Tx.Status)
						}
					case ind.Reset != nil:
						logf("wsrouterd: RCP reset, fw=%s api=%s", ind.Reset.VersionFW, ind.Reset.VersionAPI)
					}
				}
				select {
				case ready <- work:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
}

// bindPeriodicWork arms the recurring timers spec §4.2/§4.4 require:
// neighbor cache reachability ticking and the RPL Trickle timer. Both
// rearm themselves from the scheduler's timer heap rather than using
// a ticker goroutine, so they interleave correctly with the rest of
// the single dispatch loop (spec §4.5).
func bindPeriodicWork(loop *sched.Loop, nce *neighbor.Cache, rplEngine *rpl.Engine, logf logger.Logf) {
	var armNCETick func()
	armNCETick = func() {
		loop.NewTimer(mono.Now().Add(ncbTickInterval), func() {
			nce.Tick(mono.Now())
			armNCETick()
		})
	}
	armNCETick()

	var armTrickle func()
	armTrickle = func() {
		tr := rplEngine.Trickle()
		loop.NewTimer(tr.NextDeadline(), func() {
			now := mono.Now()
			if tr.Tick(now) {
				logf("wsrouterd: trickle fired, would emit DIO")
			}
			if rplEngine.ShouldSendDIS() && !now.Before(rplEngine.NextDISDeadline()) {
				if err := rplEngine.SendDIS(now); err != nil {
					logf("wsrouterd: sending DIS: %v", err)
				}
			}
			armTrickle()
		})
	}
	armTrickle()
}

// ncbTickInterval drives neighbor.Cache.Tick; 1s is comfortably below
// the smallest reachability/probe timeout spec §4.2 defines.
const ncbTickInterval = time.Second

// startMetricsServer serves reg's counters at /metrics (SPEC_FULL
// §7's stats wiring) on a background HTTP server tracked by g, shut
// down cleanly when ctx is canceled; failures are reported through g
// rather than just logged, since the group is what waits for both to
// stop at shutdown.
func startMetricsServer(ctx context.Context, g *errgroup.Group, listenAddr string, reg *prometheus.Registry, logf logger.Logf) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: listenAddr, Handler: mux}

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logf("wsrouterd: metrics server shutdown: %v", err)
		}
		return nil
	})
}

// jsonLogf is the --log-json output path: one JSON object per line,
// the shape a log-shipping agent expects instead of plain text.
func jsonLogf(format string, a ...any) {
	line, err := json.Marshal(struct {
		Time string `json:"time"`
		Msg  string `json:"msg"`
	}{
		Time: time.Now().UTC().Format(time.RFC3339Nano),
		Msg:  fmt.Sprintf(format, a...),
	})
	if err != nil {
		return
	}
	os.Stdout.Write(append(line, '\n'))
}

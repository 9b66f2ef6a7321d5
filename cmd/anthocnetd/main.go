// Command anthocnetd runs a single AntHocNet routing node: it loads a
// config, binds UDP sockets for the configured interfaces, and drives
// the routing engine until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/kprusa/anthocnet"
	"github.com/kprusa/anthocnet/config"
	"github.com/kprusa/anthocnet/stats"
)

func main() {
	selfFlag := flag.String("self", "", "this node's address, dotted-quad (required)")
	bindFlag := flag.String("bind", "0.0.0.0", "local interface address to listen on")
	bcastFlag := flag.String("broadcast", "255.255.255.255", "broadcast address for the bound interface")
	configFlag := flag.String("config", "", "path to a YAML config file; defaults are used if omitted")
	metricsAddr := flag.String("metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9090; disabled if empty")
	logLevel := flag.String("log-level", "info", "logrus level: debug, info, warn, error")
	flag.Parse()

	lvl, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.WithError(err).Fatal("invalid -log-level")
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	self, err := parseAddr(*selfFlag)
	if err != nil {
		log.WithError(err).Fatal("invalid -self")
	}

	cfg := anthocnet.DefaultConfig()
	if *configFlag != "" {
		cfg, err = config.Load(*configFlag)
		if err != nil {
			log.WithError(err).Fatal("loading config")
		}
	}

	laddr := &net.UDPAddr{IP: net.ParseIP(*bindFlag), Port: cfg.AntPort}
	baddr := &net.UDPAddr{IP: net.ParseIP(*bcastFlag), Port: cfg.AntPort}
	const iface = 0
	transport, err := anthocnet.NewTransport(cfg.AntPort,
		map[int]*net.UDPAddr{iface: laddr},
		map[int]*net.UDPAddr{iface: baddr})
	if err != nil {
		log.WithError(err).Fatal("binding transport")
	}
	defer transport.Close()

	metrics := stats.NewMetrics(self.String())
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("metrics server exited")
			}
		}()
	}

	linkCost := anthocnet.LinkCost(anthocnet.NewMACCost(cfg.AlphaTMac))
	if cfg.SNRCostMetric {
		log.Warn("snr_cost_metric is set but no SNRSource is wired in; falling back to MAC turnaround cost")
	}
	exponents := anthocnet.ExponentSource(anthocnet.NewStaticExponents(cfg))

	engine := anthocnet.NewEngine(self, cfg, transport, anthocnet.SystemClock{}, linkCost, exponents, metrics)
	engine.NotifyInterfaceUp(iface)
	if cfg.BlackholeMode {
		engine.ArmBlackhole()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	log.WithFields(log.Fields{"self": self.String(), "bind": laddr.String()}).Info("anthocnetd starting")
	engine.Run(ctx)
}

// parseAddr parses a dotted-quad IPv4 address into an anthocnet.Addr.
func parseAddr(s string) (anthocnet.Addr, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return anthocnet.Addr{}, fmt.Errorf("address %q: want dotted-quad form", s)
	}
	var out anthocnet.Addr
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return anthocnet.Addr{}, fmt.Errorf("address %q: octet %q out of range", s, p)
		}
		out[i] = byte(n)
	}
	return out, nil
}

/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

// Command pktizr is an asynchronous, scriptable, stateless raw-packet
// generator and analyzer for IPv4 networks: it enumerates (target, port)
// pairs, hands each to a user Lua script to mint a probe, transmits
// probes at a configured rate, and in parallel captures and classifies
// replies via the same script.
package main

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/pktizr/pktizr/internal/arp"
	"github.com/pktizr/pktizr/internal/driver"
	"github.com/pktizr/pktizr/internal/driver/afpacket"
	"github.com/pktizr/pktizr/internal/driver/pcapdrv"
	"github.com/pktizr/pktizr/internal/ranges"
	"github.com/pktizr/pktizr/internal/route"
	"github.com/pktizr/pktizr/internal/scan"
	"github.com/pktizr/pktizr/internal/status"
)

// Exit codes, generalized from the teacher's ExitSetupSuccess/
// ExitSetupFailed pair into one code per startup-failure kind (spec §7).
const (
	ExitSuccess = 0
	ExitUsage   = 1
	ExitRoute   = 2
	ExitARP     = 3
	ExitDriver  = 4
	ExitScript  = 5
)

type options struct {
	script      string
	ports       string
	rate        uint32
	seed        uint64
	seedSet     bool
	wait        uint32
	count       uint32
	localAddr   string
	gatewayAddr string
	netdev      string
	shuffle     bool
	quiet       bool
}

func main() {
	os.Exit(run())
}

func run() int {
	var opts options

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s <targets> -S <script> [options]\n", os.Args[0])
		pflag.PrintDefaults()
	}

	pflag.StringVarP(&opts.script, "script", "S", "", "script file (required)")
	pflag.StringVarP(&opts.ports, "ports", "p", "1", "port spec")
	pflag.Uint32VarP(&opts.rate, "rate", "r", 100, "packets per second, 0 = unlimited")
	seed := pflag.Uint64P("seed", "s", 0, "64-bit seed (default: random)")
	pflag.Uint32VarP(&opts.wait, "wait", "w", 5, "seconds to wait for late replies")
	pflag.Uint32VarP(&opts.count, "count", "c", 1, "probes per (target, port)")
	pflag.StringVarP(&opts.localAddr, "local-addr", "l", "", "override local IP")
	pflag.StringVarP(&opts.gatewayAddr, "gateway-addr", "g", "", "override gateway IP")
	pflag.StringVarP(&opts.netdev, "netdev", "n", "", "driver name, e.g. afpacket:eth0 or pcap:eth0")
	pflag.BoolVarP(&opts.shuffle, "shuffle", "R", false, "enable permutation of probe order")
	pflag.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress status line")
	pflag.Parse()

	opts.seedSet = isFlagSet("seed")
	opts.seed = *seed

	log := status.NewLogger(os.Stderr, opts.quiet)

	if pflag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "pktizr: exactly one <targets> argument is required")
		pflag.Usage()
		return ExitUsage
	}
	if opts.script == "" {
		fmt.Fprintln(os.Stderr, "pktizr: -S/--script is required")
		return ExitUsage
	}

	targets, err := ranges.ParseTargets(pflag.Arg(0), nil)
	if err != nil {
		log.Error("invalid targets", "err", err)
		return ExitUsage
	}
	ports, err := ranges.ParsePorts(opts.ports)
	if err != nil {
		log.Error("invalid ports", "err", err)
		return ExitUsage
	}

	if !opts.seedSet {
		opts.seed = randomSeed()
	}

	info, err := route.Default()
	if err != nil {
		log.Error("route lookup failed", "err", err)
		return ExitRoute
	}
	localAddr := info.LocalAddr
	gatewayAddr := info.Gateway
	if opts.localAddr != "" {
		if ip := net.ParseIP(opts.localAddr).To4(); ip != nil {
			localAddr = ip
		}
	}
	if opts.gatewayAddr != "" {
		if ip := net.ParseIP(opts.gatewayAddr).To4(); ip != nil {
			gatewayAddr = ip
		}
	}

	drv, ifaceName, err := openDriver(opts.netdev, info.Interface)
	if err != nil {
		log.Error("driver open failed", "err", err)
		return ExitDriver
	}
	defer drv.Close()
	log.Info("driver opened", "netdev", ifaceName)

	localMAC := info.LocalMAC
	gatewayMAC, err := arp.Resolve(drv, localMAC, localAddr, gatewayAddr)
	if err != nil {
		log.Error("arp resolution failed", "err", err, "gateway", gatewayAddr)
		return ExitARP
	}
	log.Info("gateway resolved", "mac", gatewayMAC)

	s := scan.New(targets, ports, opts.seed, uint64(opts.count), opts.shuffle, float64(opts.rate))
	s.LocalAddr = localAddr
	s.GatewayAddr = gatewayAddr
	s.LocalMAC = localMAC
	s.GatewayMAC = gatewayMAC
	s.Driver = drv
	s.Quiet = opts.quiet

	if _, err := os.Stat(opts.script); err != nil {
		log.Error("script not found", "path", opts.script, "err", err)
		return ExitScript
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		<-sigCh
		s.Stop.Store(true)
	}()

	s.StartWorker() // generator
	s.StartWorker() // receiver
	go scan.Generator(s, opts.script, log)
	go scan.Receiver(s, opts.script, log)
	s.WaitReady()

	// A worker that fails to load the script sets Stop before signalling
	// ready; that is a startup failure, not a completed scan.
	if s.Stop.Load() {
		s.Done.Store(true)
		s.WaitStopped()
		return ExitScript
	}

	printer := &status.Printer{
		Out:      os.Stdout,
		Quiet:    opts.quiet,
		Wait:     time.Duration(opts.wait) * time.Second,
		Total:    s.Total(),
		Counters: &s.Counters,
		Stop:     &s.Stop,
		Done:     &s.Done,
	}

	start := time.Now()
	printer.Run()
	s.WaitStopped()

	status.FinalSummary(os.Stdout, &s.Counters, time.Since(start))
	return ExitSuccess
}

// openDriver selects a concrete driver.Driver from --netdev, defaulting
// to the AF_PACKET ring driver on the interface chosen by route lookup.
func openDriver(netdev, defaultIface string) (driver.Driver, string, error) {
	kind, iface := "afpacket", defaultIface
	if netdev != "" {
		if k, n, ok := strings.Cut(netdev, ":"); ok {
			kind, iface = k, n
		} else {
			kind = netdev
		}
	}
	switch kind {
	case "afpacket":
		d, err := afpacket.Open(iface)
		return d, "afpacket:" + iface, err
	case "pcap":
		d, err := pcapdrv.Open(iface)
		return d, "pcap:" + iface, err
	default:
		return nil, "", fmt.Errorf("unknown driver %q", kind)
	}
}

// randomSeed draws 8 bytes from the OS CSPRNG, the default source named
// in spec §6 for -s/--seed.
func randomSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint64(b[:])
}

func isFlagSet(name string) bool {
	found := false
	pflag.Visit(func(f *pflag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// Command fanctl is the client for fancontrold: it applies fan configs,
// flips auto/manual mode, sets manual targets and launches the status TUI,
// all by talking to the daemon over its ipcbus rather than touching the
// EC itself.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/ectherm/fancontrold/internal/ipcbus"
	"github.com/ectherm/fancontrold/internal/ui"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	addr := flag.String("addr", ipcbus.DefaultAddr, "fancontrold ipc address")
	versionMode := flag.Bool("version", false, "Display version and exit")
	listMode := flag.Bool("list", false, "List available fan configs and exit")
	setConfig := flag.String("set", "", "Apply the named fan config and exit")
	autoMode := flag.Bool("auto", false, "Switch to automatic threshold control and exit")
	manualMode := flag.Bool("manual", false, "Switch to manual control and exit")
	target := flag.String("target", "", "Set one fan's manual target, as index=percent (e.g. 0=50), and exit")
	flag.Parse()

	if *versionMode {
		fmt.Printf("fanctl version %s\n", Version)
		return
	}

	client, err := ipcbus.Dial(nil, *addr)
	if err != nil {
		log.Fatalf("failed to connect to fancontrold at %s: %v", *addr, err)
	}
	defer client.Close()

	switch {
	case *listMode:
		runList(client)
	case *setConfig != "":
		runSetConfig(client, *setConfig)
	case *autoMode:
		runSetAuto(client, true)
	case *manualMode:
		runSetAuto(client, false)
	case *target != "":
		runSetTarget(client, *target)
	default:
		if err := ui.Run(client); err != nil {
			log.Fatalf("error running UI: %v", err)
		}
	}
}

func withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func runList(client *ipcbus.Client) {
	ctx, cancel := withTimeout()
	defer cancel()
	names, err := client.ListConfigs(ctx)
	if err != nil {
		log.Fatalf("list configs: %v", err)
	}
	for _, n := range names {
		fmt.Println(n)
	}
}

func runSetConfig(client *ipcbus.Client, name string) {
	ctx, cancel := withTimeout()
	defer cancel()
	if err := client.SetConfig(ctx, name); err != nil {
		log.Fatalf("set config %q: %v", name, err)
	}
	fmt.Printf("applied config %q\n", name)
}

func runSetAuto(client *ipcbus.Client, auto bool) {
	ctx, cancel := withTimeout()
	defer cancel()
	if err := client.SetAuto(ctx, auto); err != nil {
		log.Fatalf("set auto=%v: %v", auto, err)
	}
	fmt.Printf("auto=%v\n", auto)
}

func runSetTarget(client *ipcbus.Client, spec string) {
	idxStr, pctStr, ok := strings.Cut(spec, "=")
	if !ok {
		log.Fatalf("invalid -target %q, expected index=percent", spec)
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		log.Fatalf("invalid fan index %q: %v", idxStr, err)
	}
	pct, err := strconv.ParseFloat(pctStr, 64)
	if err != nil {
		log.Fatalf("invalid percent %q: %v", pctStr, err)
	}

	ctx, cancel := withTimeout()
	defer cancel()
	if err := client.SetTarget(ctx, idx, pct); err != nil {
		log.Fatalf("set target: %v", err)
	}
	fmt.Printf("fan %d target set to %.1f%%\n", idx, pct)
}

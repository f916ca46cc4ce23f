// Command j1939demo wires the socketcan collaborator into the transport
// protocol engine as a runnable demonstration of the library API: a thin
// CLI wrapper around the library, not part of the core engine itself.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"syscall"
	"time"

	"os/signal"

	j1939 "github.com/paoloteti/libj1939"
	"github.com/paoloteti/libj1939/addressclaim"
	"github.com/paoloteti/libj1939/socketcan"
)

func main() {
	ifName := flag.String("iface", "can0", "SocketCAN interface name")
	srcAddr := flag.Uint("src", 0x80, "our own source address")
	claim := flag.Bool("claim", false, "send an address claim on startup")
	sendHex := flag.String("send", "", "PGN:priority:dst:hexbytes one-shot message to send, e.g. FEF6:6:20:AABBCC")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	device := socketcan.NewDevice(*ifName)
	fmt.Printf("# Initializing device: %v\n", *ifName)
	if err := device.Initialize(); err != nil {
		log.Fatal(err)
	}
	defer device.Close()

	clock := j1939.NewSystemClock()
	engine := j1939.NewEngine(device, device, clock, j1939.DefaultEngineConfig())
	tracker := addressclaim.New()

	rx := func(h j1939.FrameHeader, data []byte) {
		fmt.Printf("# rx PGN=%#x src=%d dst=%d data=%s\n", h.PGN, h.Source, h.Destination, hex.EncodeToString(data))
	}
	errFn := func(h j1939.FrameHeader, reason j1939.AbortReason) {
		fmt.Printf("# abort from src=%d reason=%v\n", h.Source, reason)
	}
	if err := engine.Setup(rx, errFn); err != nil {
		log.Fatal(err)
	}
	defer engine.Dispose()

	if err := engine.Dispatcher().Register(j1939.PGNAddressClaimed, 0, tracker.Handle); err != nil {
		log.Fatal(err)
	}

	src := uint8(*srcAddr)
	if *claim {
		name := j1939.Name{IdentityNumber: 1, ManufacturerCode: 822, Function: 0, IndustryGroup: 0}
		fmt.Printf("# Claiming address %d\n", src)
		if err := engine.AddressClaim(src, name); err != nil {
			log.Fatal(err)
		}
	}

	fmt.Printf("# Starting to poll device: %v\n", *ifName)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if rc := engine.PollOnce(); rc < 0 {
				time.Sleep(50 * time.Millisecond)
			}
		}
	}()

	if *sendHex != "" {
		pgn, priority, dst, data, err := parseSendSpec(*sendHex)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("# Sending PGN=%#x priority=%d dst=%d data=%s\n", pgn, priority, dst, hex.EncodeToString(data))
		if err := engine.Send(pgn, priority, src, dst, data); err != nil {
			log.Fatalf("# send failed: %v\n", err)
		}
		fmt.Printf("# send complete\n")
	}

	<-ctx.Done()
	fmt.Printf("# shutting down\n")
}


// parseSendSpec parses "PGN:priority:dst:hexbytes", e.g. "FEF6:6:20:AABBCC".
func parseSendSpec(spec string) (pgn uint32, priority uint8, dst uint8, data []byte, err error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 4 {
		return 0, 0, 0, nil, fmt.Errorf("invalid -send spec %q, want PGN:priority:dst:hexbytes", spec)
	}
	p, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return 0, 0, 0, nil, fmt.Errorf("invalid PGN in -send spec: %w", err)
	}
	pr, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return 0, 0, 0, nil, fmt.Errorf("invalid priority in -send spec: %w", err)
	}
	d, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil {
		return 0, 0, 0, nil, fmt.Errorf("invalid dst in -send spec: %w", err)
	}
	bytes, err := hex.DecodeString(parts[3])
	if err != nil {
		return 0, 0, 0, nil, fmt.Errorf("invalid hex data in -send spec: %w", err)
	}
	return uint32(p), uint8(pr), uint8(d), bytes, nil
}

// Command demoserver starts a stand-in archive backend with a few editions
// of a small site, for exercising replaydesk edition switching locally.
// Usage: go run ./cmd/demoserver [-port 9999] [-fail] [-delay 2s]
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/raysh454/replaydesk/internal/demoserver"
)

func main() {
	cfg := demoserver.DefaultConfig()

	flag.IntVar(&cfg.Port, "port", cfg.Port, "port to listen on")
	flag.BoolVar(&cfg.ResolveFailing, "fail", false, "answer 503 from the resolve endpoint")
	flag.DurationVar(&cfg.ResolveDelay, "delay", 0, "artificial resolve latency")
	flag.Parse()

	if cfg.Port < 1 || cfg.Port > 65535 {
		log.Fatalf("Invalid port: %d", cfg.Port)
	}

	fmt.Println("===========================================")
	fmt.Println("   replaydesk Demo Archive")
	fmt.Println("===========================================")
	fmt.Println()
	fmt.Println("Serves snapshot metadata, edition lists, edition")
	fmt.Println("resolution and a replay viewer for a small demo site")
	fmt.Println("captured across several editions.")
	fmt.Println()
	fmt.Println("Scenarios:")
	fmt.Println("  - /about exists in 2023 and 2024, gone in 2025 (entry fallback)")
	fmt.Println("  - /contact only in 2023 and the no-entry refresh (timegate fallback)")
	fmt.Println("  - 2024 /about has no <title> (raw content title lookup)")
	fmt.Println("  - -fail / -delay exercise unconfirmed switches and timeouts")
	fmt.Println()

	server := demoserver.NewDemoServer(cfg)
	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

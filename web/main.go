package main

import (
	"flag"
	"log"
	"os"

	"github.com/df07/go-terrain-marcher/pkg/config"
	"github.com/df07/go-terrain-marcher/pkg/publish"
	"github.com/df07/go-terrain-marcher/web/server"
)

func main() {
	port := flag.Int("port", 0, "Port to serve on (overrides TERRAIN_PORT)")
	static := flag.String("static", "", "Directory holding the viewer page (overrides TERRAIN_STATIC_DIR)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Invalid configuration: %v", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *static != "" {
		cfg.StaticDir = *static
	}

	sink, err := publish.FromConfig(cfg.Snapshots)
	if err != nil {
		log.Printf("Snapshots disabled: %v", err)
		sink = nil
	}

	webServer := server.NewServer(cfg, sink)

	log.Printf("Terrain Marcher Web Server")
	log.Printf("Visit http://localhost:%d to start exploring", cfg.Port)

	if err := webServer.Start(); err != nil {
		log.Printf("Error starting server: %v", err)
		os.Exit(1)
	}
}

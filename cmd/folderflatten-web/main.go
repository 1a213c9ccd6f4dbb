package main

import (
	"flag"
	"log"

	"github.com/Malcolmdotpeewhy/folderflatten/internal/config"
	"github.com/Malcolmdotpeewhy/folderflatten/internal/web"
)

var (
	version = "dev" // set by ldflags during build
)

func main() {
	addr := flag.String("addr", "localhost:8080", "HTTP server address")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *addr != "" {
		cfg.Addr = *addr
	}

	server, err := web.NewServer(cfg)
	if err != nil {
		log.Fatal(err)
	}
	server.SetVersion(version)

	if err := server.Start(cfg.Addr); err != nil {
		log.Fatal(err)
	}
}

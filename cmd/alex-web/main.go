// alex-web is the standalone chat API binary: auth, the persona dispatch
// core, tiered memory, and the HTTP/WebSocket delivery layer in one process.
package main

import (
	"log"
	"os"

	serverBootstrap "alex/internal/delivery/server/bootstrap"
	runtimeconfig "alex/internal/shared/config"
)

func main() {
	if err := runtimeconfig.LoadDotEnv(); err != nil {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	configPath := os.Getenv("ALEX_CONFIG_PATH")

	if err := serverBootstrap.RunServer(configPath); err != nil {
		log.Fatalf("web server exited: %v", err)
	}
}

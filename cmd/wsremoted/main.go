// wsremoted exposes a local positional store over the wsremote websocket
// RPC protocol, so a conveyor instance on another host can drive it as a
// conveyor.Ops triple. Structure follows cmd/main/main.go: build, start,
// wait for a signal, shut down.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/conveyorio/conveyor/backend/localfile"
	"github.com/conveyorio/conveyor/backend/wsremote"
	"github.com/conveyorio/conveyor/config"
)

func main() {
	configPath := flag.String("config", "", "path to a wsremoted YAML config file")
	addr := flag.String("addr", ":8088", "listen address")
	path := flag.String("store", "./wsremote.dat", "backing file path")
	secret := flag.String("secret", os.Getenv("WSREMOTED_SECRET"), "HMAC secret for bearer tokens (empty disables auth)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		if err := config.LoadWithEnv(*configPath, "WSREMOTED", &cfg); err != nil {
			log.Fatalf("wsremoted: load config: %v", err)
		}
		if cfg.Backend.DSN != "" {
			*path = cfg.Backend.DSN
		}
	}

	store, err := localfile.Open(localfile.DefaultConfig(*path))
	if err != nil {
		log.Fatalf("wsremoted: open store: %v", err)
	}
	defer store.Close()

	handler := wsremote.NewHandler(wsremote.ServerConfig{Secret: *secret}, store)

	mux := http.NewServeMux()
	mux.Handle("/rpc", handler)

	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		log.Printf("wsremoted: listening on %s, backing store %s", *addr, *path)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("wsremoted: serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("wsremoted: shutdown: %v", err)
	}
}

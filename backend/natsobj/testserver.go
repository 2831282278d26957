package natsobj

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// StartTestServer starts an embedded, JetStream-enabled NATS server on a
// random port for use in integration tests, so natsobj's tests don't depend
// on an external NATS deployment. The caller must call the returned
// shutdown func.
func StartTestServer(storeDir string) (url string, shutdown func(), err error) {
	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1, // random free port
		JetStream: true,
		StoreDir:  storeDir,
		NoLog:     true,
		NoSigs:    true,
	}

	srv, err := server.NewServer(opts)
	if err != nil {
		return "", nil, fmt.Errorf("natsobj: new embedded server: %w", err)
	}

	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		srv.Shutdown()
		return "", nil, fmt.Errorf("natsobj: embedded server not ready in time")
	}

	return srv.ClientURL(), srv.Shutdown, nil
}

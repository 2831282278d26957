// conveyorctl is a thin command-line wrapper around the conveyor library,
// following the single-binary, flag-parsed shape of cmd/main/main.go:
// build a config, wire a backend, run one operation, exit.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conveyorio/conveyor/backend/localfile"
	"github.com/conveyorio/conveyor/backend/natsobj"
	"github.com/conveyorio/conveyor/backend/wsremote"
	"github.com/conveyorio/conveyor/config"
	"github.com/conveyorio/conveyor/conveyor"
	prom "github.com/conveyorio/conveyor/internal/telemetry/prometheus"
	"github.com/conveyorio/conveyor/internal/telemetry/tracing"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	configPath := flag.String("config", "", "path to a conveyorctl YAML config file")
	flag.CommandLine.Parse(os.Args[2:])

	cfg := config.Default()
	if *configPath != "" {
		if err := config.LoadWithEnv(*configPath, "CONVEYOR", &cfg); err != nil {
			log.Fatalf("conveyorctl: load config: %v", err)
		}
	}

	var err error
	switch os.Args[1] {
	case "put":
		err = runPut(cfg, flag.Args())
	case "cat":
		err = runCat(cfg, flag.Args())
	case "stat":
		err = runStat(cfg)
	case "serve":
		err = runServe(cfg)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("conveyorctl: %v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: conveyorctl <put|cat|stat|serve> [-config path] [args]")
}

// openBackend wires cfg.Backend into the matching conveyor.Ops triple.
func openBackend(cfg config.CLIConfig) (conveyor.Ops, func() error, error) {
	switch cfg.Backend.Kind {
	case "", "localfile":
		b, err := localfile.Open(localfile.DefaultConfig(cfg.Backend.DSN))
		if err != nil {
			return conveyor.Ops{}, nil, err
		}
		return conveyor.Ops{Write: b.Write, Read: b.Read, Seek: b.Seek}, b.Close, nil
	case "natsobj":
		bucket, key := splitNatsDSN(cfg.Backend.DSN)
		b, err := natsobj.Open(context.Background(), natsobj.Config{URL: "", Bucket: bucket, Key: key})
		if err != nil {
			return conveyor.Ops{}, nil, err
		}
		return conveyor.Ops{Write: b.Write, Read: b.Read, Seek: b.Seek}, b.Close, nil
	case "wsremote":
		b, err := wsremote.Open(wsremote.Config{URL: cfg.Backend.DSN, Token: os.Getenv("CONVEYOR_WS_TOKEN")})
		if err != nil {
			return conveyor.Ops{}, nil, err
		}
		return conveyor.Ops{Write: b.Write, Read: b.Read, Seek: b.Seek}, b.Close, nil
	default:
		return conveyor.Ops{}, nil, fmt.Errorf("unknown backend kind %q", cfg.Backend.Kind)
	}
}

func splitNatsDSN(dsn string) (bucket, key string) {
	for i := 0; i < len(dsn); i++ {
		if dsn[i] == '/' {
			return dsn[:i], dsn[i+1:]
		}
	}
	return dsn, "data"
}

func modeFromString(s string) conveyor.AccessMode {
	switch s {
	case "readonly":
		return conveyor.ReadOnly
	case "writeonly":
		return conveyor.WriteOnly
	case "append":
		return conveyor.Append
	default:
		return conveyor.ReadWrite
	}
}

func openConveyor(cfg config.CLIConfig) (*conveyor.Conveyor, func() error, error) {
	ops, closeBackend, err := openBackend(cfg)
	if err != nil {
		return nil, nil, err
	}

	c, err := conveyor.Open(conveyor.Config{
		Mode: modeFromString(cfg.Mode),
		Ops:  ops,
		WriteCapacity: conveyor.Capacity{
			Initial: cfg.WriteCapacity.Initial,
			Max:     cfg.WriteCapacity.Max,
		},
		ReadCapacity: conveyor.Capacity{
			Initial: cfg.ReadCapacity.Initial,
			Max:     cfg.ReadCapacity.Max,
		},
		Logger: slog.Default(),
	})
	if err != nil {
		closeBackend()
		return nil, nil, err
	}

	return c, func() error {
		closeErr := c.Close()
		backendErr := closeBackend()
		if closeErr != nil {
			return closeErr
		}
		return backendErr
	}, nil
}

func runPut(cfg config.CLIConfig, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: conveyorctl put <local-file>")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	c, closeAll, err := openConveyor(cfg)
	if err != nil {
		return err
	}
	defer closeAll()

	if _, err := c.Write(data); err != nil {
		return err
	}
	return c.Flush()
}

func runCat(cfg config.CLIConfig, args []string) error {
	c, closeAll, err := openConveyor(cfg)
	if err != nil {
		return err
	}
	defer closeAll()

	buf := make([]byte, 32*1024)
	for {
		n, err := c.Read(buf)
		if n > 0 {
			if _, werr := os.Stdout.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func runStat(cfg config.CLIConfig) error {
	c, closeAll, err := openConveyor(cfg)
	if err != nil {
		return err
	}
	defer closeAll()

	st := c.Stats()
	fmt.Printf("bytes_written=%d bytes_read=%d short_writes=%d growth_events=%d last_error=%q\n",
		st.BytesWritten, st.BytesRead, st.ShortWrites, st.GrowthEvents, st.LastErrorCode)
	return nil
}

func runServe(cfg config.CLIConfig) error {
	c, closeAll, err := openConveyor(cfg)
	if err != nil {
		return err
	}
	defer closeAll()

	if cfg.Observability.EnableTracing {
		shutdown, err := tracing.Init(context.Background(), tracing.Config{
			ServiceName:    "conveyorctl",
			ServiceVersion: "0.1.0",
			Environment:    "development",
			Exporter:       "stdout",
			SampleRate:     1.0,
		})
		if err != nil {
			log.Printf("conveyorctl: tracing disabled: %v", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	var srv *http.Server
	if cfg.Observability.EnableMetrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(prom.NewCollector(c.ID().String(), c))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv = &http.Server{Addr: cfg.Observability.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("conveyorctl: metrics server: %v", err)
			}
		}()
		log.Printf("conveyorctl: metrics listening on %s", cfg.Observability.MetricsAddr)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return nil
}

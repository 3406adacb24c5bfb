package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/tetherctl/internal/config"
	"github.com/danmuck/tetherctl/internal/link"
	"github.com/danmuck/tetherctl/internal/logging"
	"github.com/danmuck/tetherctl/internal/observability"
)

// targetsFile persists named hub endpoints for the demo client.
type targetsFile struct {
	Targets []targetConfig `toml:"targets"`
}

type targetConfig struct {
	Name string `toml:"name"`
	Addr string `toml:"addr"`
}

func main() {
	configPath := flag.String("config", "tetherctl.toml", "client config path")
	targetsPath := flag.String("targets", "", "optional named-targets toml")
	targetName := flag.String("target", "", "named target overriding server-socket/server-port")
	flag.Parse()

	logging.ConfigureRuntime()
	observability.InitLogger("tetherctl")

	if err := run(*configPath, *targetsPath, *targetName); err != nil {
		log.Error().Err(err).Msg("tetherctl exited")
		os.Exit(1)
	}
}

func run(configPath, targetsPath, targetName string) error {
	cfg, err := config.LoadClientConfig(configPath)
	if err != nil {
		return err
	}
	addr := cfg.Addr()
	if targetName != "" {
		addr, err = resolveTarget(targetsPath, targetName)
		if err != nil {
			return err
		}
	}

	if cfg.MetricsAddr != "" {
		observability.RegisterMetrics()
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Warn().Err(err).Msg("metrics listener stopped")
			}
		}()
	}

	handler := link.PacketHandlerFunc(func(inbound [][]byte) [][]byte {
		for _, frame := range inbound {
			log.Info().Int("len", len(frame)).Str("payload", string(frame)).Msg("hub frame")
		}
		return nil
	})

	client, err := link.NewClient(link.Config{
		Addr:          addr,
		TrustRootFile: cfg.TrustRoot,
		ServerName:    cfg.ServerName,
		OnStateChange: func(s link.State) {
			log.Info().Stringer("state", s).Msg("link state")
		},
	}, handler)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go sendStdin(client)

	if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func resolveTarget(path, name string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("tetherctl: -target requires -targets")
	}
	var file targetsFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return "", fmt.Errorf("tetherctl: load targets (%s): %w", path, err)
	}
	for _, t := range file.Targets {
		if t.Name == name {
			return t.Addr, nil
		}
	}
	return "", fmt.Errorf("tetherctl: unknown target %q", name)
}

// sendStdin queues each stdin line as one frame; accepted in any link state.
func sendStdin(client *link.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		frame := make([]byte, len(line))
		copy(frame, line)
		if err := client.Send(frame); err != nil {
			return
		}
	}
}

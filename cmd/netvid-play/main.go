// Command netvid-play replays a .netvid capture file to a remote endpoint,
// pacing sends to match the recorded timing, ported from netvid_play.cpp.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/trylle/netvid/pkg/logging"
	"github.com/trylle/netvid/pkg/metrics"
	"github.com/trylle/netvid/pkg/recorder"
	"github.com/trylle/netvid/pkg/registry"
	"github.com/trylle/netvid/pkg/socket"
)

func main() {
	var sendAddr, filePath string
	var speed float64
	var seek int
	var stop int64
	var metricsAddr, registryAddr, streamID string

	cmd := &cobra.Command{
		Use:   "netvid-play",
		Short: "Replay a netvid capture file to a remote endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(playOptions{
				sendAddr:     sendAddr,
				filePath:     filePath,
				speed:        speed,
				seek:         seek,
				stop:         stop,
				metricsAddr:  metricsAddr,
				registryAddr: registryAddr,
				streamID:     streamID,
			})
		},
	}

	cmd.Flags().StringVar(&sendAddr, "send", "", "remote address to send the stream to")
	cmd.Flags().StringVarP(&filePath, "file", "f", "-", "capture file to read (\"-\" for stdin)")
	cmd.Flags().Float64VarP(&speed, "speed", "s", 1, "playback speed multiplier")
	cmd.Flags().IntVar(&seek, "seek", 0, "first frame to play")
	cmd.Flags().Int64Var(&stop, "stop", -1, "frame to stop before (-1 for end of file)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9100)")
	cmd.Flags().StringVar(&registryAddr, "registry", "", "if set, resolve --stream-id's endpoint from the Redis registry at host:port instead of --send")
	cmd.Flags().StringVar(&streamID, "stream-id", "", "stream id to look up in the registry (requires --registry, replaces --send)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type playOptions struct {
	sendAddr     string
	filePath     string
	speed        float64
	seek         int
	stop         int64
	metricsAddr  string
	registryAddr string
	streamID     string
}

func run(opts playOptions) error {
	log, err := logging.NewLogger("player", logging.INFO, "")
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	if opts.registryAddr == "" && opts.sendAddr == "" {
		return fmt.Errorf("either --send or --registry with --stream-id is required")
	}

	var in *os.File
	if opts.filePath == "-" {
		in = os.Stdin
	} else {
		f, err := os.Open(opts.filePath)
		if err != nil {
			return fmt.Errorf("open capture file: %w", err)
		}
		defer f.Close()
		in = f
	}

	reader := recorder.NewReader(in)

	sock := socket.New(log)
	if err := sock.Bind(":0"); err != nil {
		return fmt.Errorf("bind: %w", err)
	}
	defer sock.Close()

	sendAddr := opts.sendAddr
	if opts.registryAddr != "" {
		if opts.streamID == "" {
			return fmt.Errorf("--stream-id is required with --registry")
		}
		resolved, err := resolveFromRegistry(opts.registryAddr, opts.streamID, log)
		if err != nil {
			return fmt.Errorf("resolve stream from registry: %w", err)
		}
		sendAddr = resolved
		log.Info("resolved stream from registry", logging.Fields{"stream_id": opts.streamID, "endpoint": resolved})
	}

	remote, err := socket.ResolveEndpoint(sendAddr)
	if err != nil {
		return fmt.Errorf("resolve send address: %w", err)
	}

	collector := metrics.New("sender")
	if opts.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collector)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: opts.metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("metrics server stopped", logging.Fields{"error": err.Error()})
			}
		}()
		defer srv.Close()
		log.Info("serving metrics", logging.Fields{"addr": opts.metricsAddr})
	}

	player := recorder.NewPlayer(reader, sock, remote, opts.speed, log)
	player.OnPacketSent = collector.ObservePacketSent

	if opts.seek > 0 {
		if err := player.Seek(uint32(opts.seek)); err != nil {
			return fmt.Errorf("seek: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	statusDone := make(chan struct{})
	go func() {
		defer close(statusDone)
		reportStatus(ctx, player)
	}()

	runErr := player.Run(ctx, opts.stop)
	cancel()
	<-statusDone

	fmt.Fprintln(os.Stderr)

	if runErr != nil && runErr != context.Canceled {
		return fmt.Errorf("playback: %w", runErr)
	}

	log.Info("playback finished", nil)

	return nil
}

// resolveFromRegistry looks up streamID's advertised endpoint in the Redis
// registry at addr (host:port).
func resolveFromRegistry(addr, streamID string, log *logging.Logger) (string, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("parse --registry address: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", fmt.Errorf("parse --registry port: %w", err)
	}

	reg, err := registry.New(registry.Config{Host: host, Port: port}, log)
	if err != nil {
		return "", err
	}
	defer reg.Close()

	info, err := reg.Lookup(context.Background(), streamID)
	if err != nil {
		return "", err
	}

	return info.Endpoint, nil
}

func reportStatus(ctx context.Context, p *recorder.Player) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintf(os.Stderr, "\r\033[K%s", p.StatusLine())
		}
	}
}

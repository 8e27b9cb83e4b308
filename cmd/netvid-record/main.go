// Command netvid-record binds a UDP socket and captures every packet it
// sees to a .netvid capture file, ported from netvid_record.cpp.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/trylle/netvid/pkg/archive"
	"github.com/trylle/netvid/pkg/logging"
	"github.com/trylle/netvid/pkg/metrics"
	"github.com/trylle/netvid/pkg/receiver"
	"github.com/trylle/netvid/pkg/recorder"
	"github.com/trylle/netvid/pkg/registry"
	"github.com/trylle/netvid/pkg/socket"
)

func main() {
	var recvAddr, filePath string
	var metricsAddr, registryAddr, streamID, mode, archiveAddr string

	cmd := &cobra.Command{
		Use:   "netvid-record",
		Short: "Capture a netvid UDP stream to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(recordOptions{
				recvAddr:    recvAddr,
				filePath:    filePath,
				metricsAddr: metricsAddr,
				registryAddr: registryAddr,
				streamID:    streamID,
				mode:        mode,
				archiveAddr: archiveAddr,
			})
		},
	}

	cmd.Flags().StringVar(&recvAddr, "recv", ":12382", "local address to bind and receive on")
	cmd.Flags().StringVar(&filePath, "file", "-", "capture file to write (\"-\" for stdout)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9100)")
	cmd.Flags().StringVar(&registryAddr, "registry", "", "if set, advertise this stream in the Redis registry at host:port")
	cmd.Flags().StringVar(&streamID, "stream-id", "", "stream id to advertise in the registry (required with --registry)")
	cmd.Flags().StringVar(&mode, "mode", "", "human-readable mode string to advertise, e.g. 1920x1080x32")
	cmd.Flags().StringVar(&archiveAddr, "archive", "", "if set, ship the finished capture file to this QUIC archive collector")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type recordOptions struct {
	recvAddr     string
	filePath     string
	metricsAddr  string
	registryAddr string
	streamID     string
	mode         string
	archiveAddr  string
}

func run(opts recordOptions) error {
	log, err := logging.NewLogger("recorder", logging.INFO, "")
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	var out *os.File
	writeToStdout := opts.filePath == "-"
	if writeToStdout {
		out = os.Stdout
	} else {
		f, err := os.Create(opts.filePath)
		if err != nil {
			return fmt.Errorf("create capture file: %w", err)
		}
		defer f.Close()
		out = f
	}

	writer := recorder.NewWriter(out)

	sock := socket.New(log)
	if err := sock.Bind(opts.recvAddr); err != nil {
		return fmt.Errorf("bind: %w", err)
	}
	defer sock.Close()

	recv := receiver.NewBatchedReceiver(sock, log)

	collector := metrics.New("receiver")
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if opts.registryAddr != "" {
		if opts.streamID == "" {
			return fmt.Errorf("--stream-id is required with --registry")
		}
		reg, err := newRegistryFromAddr(opts.registryAddr, log)
		if err != nil {
			return fmt.Errorf("connect registry: %w", err)
		}
		defer reg.Close()

		info := registry.StreamInfo{StreamID: opts.streamID, Endpoint: opts.recvAddr, Mode: opts.mode}
		if err := reg.Register(ctx, info); err != nil {
			return fmt.Errorf("register stream: %w", err)
		}
		defer reg.Deregister(context.Background(), opts.streamID)

		go refreshRegistration(ctx, reg, info, log)
	}

	start := time.Now()
	recv.OnLivePacket = func(pkt receiver.Packet) {
		collector.ObservePacketReceived(len(pkt.Data))
		if err := writer.WritePacket(time.Since(start), pkt.Data); err != nil {
			log.Error("write packet failed", logging.Fields{"error": err.Error()})
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("interrupted, stopping", nil)
		cancel()
	}()

	statusDone := make(chan struct{})
	go func() {
		defer close(statusDone)
		reportStatus(ctx, writer)
	}()

	err = recv.Start(ctx)
	<-statusDone

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("receive loop: %w", err)
	}

	log.Info("recording stopped", logging.Fields{"bytes_written": writer.BytesWritten()})

	if opts.archiveAddr != "" && !writeToStdout {
		if err := shipArchive(opts.archiveAddr, opts.filePath, log); err != nil {
			log.Error("archive upload failed", logging.Fields{"error": err.Error()})
		}
	}

	return nil
}

// newRegistryFromAddr splits a host:port registry address into the
// registry.Config the teacher-derived redis client expects.
func newRegistryFromAddr(addr string, log *logging.Logger) (*registry.Registry, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("parse --registry address: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("parse --registry port: %w", err)
	}
	return registry.New(registry.Config{Host: host, Port: port}, log)
}

// refreshRegistration keeps the stream's registry TTL alive for the
// lifetime of the recording.
func refreshRegistration(ctx context.Context, reg *registry.Registry, info registry.StreamInfo, log *logging.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := reg.Register(ctx, info); err != nil && log != nil {
				log.Warn("registry refresh failed", logging.Fields{"error": err.Error()})
			}
		}
	}
}

// shipArchive streams the just-closed capture file to a remote QUIC
// archive collector. Uses an unauthenticated TLS config: archival transfer
// is a reliability side-channel for the capture artifact, not a security
// boundary (the wire protocol itself carries no encryption, per spec).
func shipArchive(archiveAddr, filePath string, log *logging.Logger) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open capture file for archiving: %w", err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tlsConfig := &tls.Config{InsecureSkipVerify: true, NextProtos: []string{"netvid-archive"}}

	if err := archive.SendArchive(ctx, archiveAddr, tlsConfig, filepath.Base(filePath), f); err != nil {
		return err
	}

	log.Info("archived capture", logging.Fields{"addr": archiveAddr, "file": filePath})

	return nil
}

func reportStatus(ctx context.Context, w *recorder.Writer) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintf(os.Stderr, "\r\033[Kbytes: %d", w.BytesWritten())
		}
	}
}

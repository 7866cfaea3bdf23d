// Command rtpsd runs a single RTPS participant, publishing and
// subscribing to one demo topic over real UDP transport, with a
// Prometheus metrics endpoint exposed alongside it.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/nimbora/rtpscore/internal/config"
	"github.com/nimbora/rtpscore/internal/logging"
	"github.com/nimbora/rtpscore/internal/participant"
	"github.com/nimbora/rtpscore/internal/qos"
	"github.com/nimbora/rtpscore/internal/rtpsmetrics"
	"github.com/nimbora/rtpscore/internal/transport"
	"github.com/nimbora/rtpscore/internal/types"
)

const demoTopicName = "rtpsd/demo"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:         logging.Level(cfg.LogLevel),
		Format:        logging.Format(cfg.LogFormat),
		DomainID:      cfg.DomainID,
		ParticipantID: fmt.Sprintf("%d.%d.%d", cfg.HostID, cfg.AppID, cfg.InstanceID),
	})
	cfg.LogConfig(logger)

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		logger.Debug().Msgf(format, args...)
	})); err != nil {
		logger.Warn().Err(err).Msg("failed to adjust GOMAXPROCS to cgroup CPU quota")
	}

	guidPrefix := types.NewGuidPrefix(cfg.HostID, cfg.AppID, cfg.InstanceID)
	local := types.NewLocatorUDPv4(resolveInterfaceIP(cfg.Interface), uint32(cfg.UnicastPort))

	tr, err := transport.NewUDPTransport(local, cfg.Interface)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open UDP transport")
	}
	local = tr.LocalLocator()

	p := participant.New(participant.Config{
		DomainID:              cfg.DomainID,
		GuidPrefix:            guidPrefix,
		VendorId:              types.VendorIdThisImplementation,
		Transport:             tr,
		MetatrafficUnicast:    []types.Locator{local},
		DefaultUnicast:        []types.Locator{local},
		AnnounceInterval:      cfg.AnnounceInterval,
		PumpInterval:          cfg.PumpInterval,
		LeaseDuration:         cfg.LeaseDuration,
		AnnounceRatePerSecond: cfg.AnnounceRatePerSecond,
		DatagramRatePerSecond: cfg.DatagramRatePerSecond,
		Workers:               cfg.Workers,
		WorkerQueueSize:       cfg.WorkerQueueSize,
		MaxInFlightMatches:    cfg.MaxInFlightMatches,
		CPUSampleInterval:     defaultCPUSampleInterval,
		Logger:                logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p.Enable(ctx)
	defer p.Close()

	if err := startDemoEndpoints(p, logger); err != nil {
		logger.Error().Err(err).Msg("failed to create demo endpoints")
	}

	httpErrCh := make(chan error, 1)
	go func() {
		httpErrCh <- runMetricsServer(ctx, cfg.MetricsAddr, logger)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-httpErrCh:
		if err != nil {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}
}

const defaultCPUSampleInterval = 5 * time.Second

// startDemoEndpoints creates one best-effort publication and one
// subscription on a fixed demo topic, giving the process something to
// discover and match against a peer rtpsd instance on the same domain.
func startDemoEndpoints(p *participant.Participant, logger zerolog.Logger) error {
	pub, err := p.CreatePublisher(qos.Default())
	if err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}
	sub, err := p.CreateSubscriber(qos.Default())
	if err != nil {
		return fmt.Errorf("create subscriber: %w", err)
	}

	topic, err := p.CreateTopic(demoTopicName, "rtpsd.Demo", qos.Default())
	if err != nil {
		return fmt.Errorf("create topic: %w", err)
	}

	writer, err := p.CreateDataWriter(pub, topic, qos.Default())
	if err != nil {
		return fmt.Errorf("create data writer: %w", err)
	}
	reader, err := p.CreateDataReader(sub, topic, qos.Default())
	if err != nil {
		return fmt.Errorf("create data reader: %w", err)
	}

	logger.Info().
		Str("writer_guid", writer.String()).
		Str("reader_guid", reader.String()).
		Str("topic", demoTopicName).
		Msg("demo endpoints created")

	go demoWriteLoop(p, writer, logger)
	go demoReadLoop(p, reader, logger)
	return nil
}

func demoWriteLoop(p *participant.Participant, writer types.Guid, logger zerolog.Logger) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	seq := 0
	for range t.C {
		seq++
		payload := []byte(fmt.Sprintf("heartbeat-%d", seq))
		if err := p.Write(writer, payload, time.Now()); err != nil {
			logger.Debug().Err(err).Msg("demo write failed")
		}
	}
}

func demoReadLoop(p *participant.Participant, reader types.Guid, logger zerolog.Logger) {
	t := time.NewTicker(200 * time.Millisecond)
	defer t.Stop()
	for range t.C {
		samples, err := p.Take(reader, 16)
		if err != nil {
			logger.Debug().Err(err).Msg("demo take failed")
			continue
		}
		for _, s := range samples {
			logger.Debug().Bytes("data", s.Data).Msg("demo sample delivered")
		}
	}
}

func runMetricsServer(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rtpsmetrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"healthy"}`)
	})

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics http server starting")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("metrics http server shutdown error")
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// resolveInterfaceIP returns the address advertised in the participant's
// unicast locator. An empty name yields 0.0.0.0; otherwise the interface's
// first IPv4 address is used. The socket itself binds to all interfaces.
func resolveInterfaceIP(ifaceName string) net.IP {
	if ifaceName == "" {
		return net.IPv4zero
	}
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return net.IPv4zero
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return net.IPv4zero
	}
	for _, a := range addrs {
		if ipNet, ok := a.(*net.IPNet); ok {
			if ip4 := ipNet.IP.To4(); ip4 != nil {
				return ip4
			}
		}
	}
	return net.IPv4zero
}

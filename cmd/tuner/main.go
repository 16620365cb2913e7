package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	influxapi "github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/tuner/pkg/tuner"
	"github.com/norasector/tuner/pkg/tuner/api"
	"github.com/norasector/tuner/pkg/tuner/config"
	"github.com/norasector/tuner/pkg/tuner/device"
	"github.com/norasector/tuner/pkg/tuner/device/file"
	hackrfDevice "github.com/norasector/tuner/pkg/tuner/device/hackrf"
	"github.com/norasector/tuner/pkg/tuner/device/rtlsdr"
	"github.com/norasector/tuner/pkg/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samuel/go-hackrf/hackrf"
	"golang.org/x/sync/errgroup"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
	configFile := flag.String("config", "tuner.yaml", "YAML config file")
	debug := flag.Bool("debug", false, "enable debug logging")

	flag.Parse()
	if *debug {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	}

	opts, err := config.Load(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("error loading config")
	}

	var open device.Opener

	switch opts.Device {
	case "rtlsdr":
		log.Info().Str("device", "rtlsdr").Int("index", opts.RTLSDRDeviceIndex).Msg("using device")
		open = rtlsdr.NewOpener(opts.RTLSDRDeviceIndex)
	case "file":
		log.Info().Str("device", "file").Str("location", opts.Playback.Location).Msg("using device")
		open = file.NewOpener(opts.Playback.Location, file.Options{
			Format:   file.Format(opts.Playback.Format),
			Loop:     opts.Playback.Loop,
			Realtime: opts.Playback.Realtime,
		})
	case "hackrf":
		log.Info().Str("device", "hackrf").Msg("using device")
		if err := hackrf.Init(); err != nil {
			log.Fatal().Str("device", "hackrf").Err(err).Msg("failed to initialize hackRF")
		}
		defer hackrf.Exit()
		open = hackrfDevice.NewOpener()
	default:
		log.Fatal().Str("device", opts.Device).Msg("unknown device")
	}

	var writeAPI influxapi.WriteAPI = &util.MockWriteAPI{}
	if opts.InfluxDB.Host != "" {
		client := influxdb2.NewClient(opts.InfluxDB.Host, opts.InfluxDB.Token)
		defer client.Close()
		writeAPI = client.WriteAPI(opts.InfluxDB.Organization, opts.InfluxDB.Bucket)
		defer writeAPI.Flush()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	initial := tuner.Settings{
		FrequencyHz:  opts.Defaults.Frequency,
		SampleRateHz: opts.Defaults.SampleRate,
		Gain:         opts.Defaults.Gain,
		GainMode:     tuner.GainMode(opts.Defaults.GainMode),
		Mode:         tuner.Mode(opts.Defaults.Mode),
		BandwidthHz:  opts.Defaults.Bandwidth,
	}

	receiver, err := tuner.NewReceiver(open, initial,
		tuner.Options{
			StreamBlockSize: opts.Stream.BlockSize,
			ScanBlockSize:   opts.ScanBlockSize,
			Pace:            opts.Stream.Pace,
			StreamBuffer:    opts.Stream.Buffer,
		},
		tuner.WithInfluxDB(writeAPI),
		tuner.WithMetrics(reg),
		tuner.WithLogger(log.Logger))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create receiver")
	}

	server := api.NewServer(opts.ListenAddr, receiver,
		api.WithLogger(log.Logger),
		api.WithStaticDir(opts.StaticDir),
		api.WithGatherer(reg))

	eg, ctx := errgroup.WithContext(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg.Go(func() error {
		select {
		case <-sigChan:
			log.Info().Msg("shutting down")
		case <-ctx.Done():
		}
		cancel()
		return receiver.Disconnect()
	})

	eg.Go(func() error {
		return server.Run(ctx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("exited program")
	}
}

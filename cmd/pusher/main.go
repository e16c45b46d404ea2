package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"aac-rtmp-pusher/pkg/aacfile"
	"aac-rtmp-pusher/pkg/archive"
	"aac-rtmp-pusher/pkg/config"
	"aac-rtmp-pusher/pkg/inspect"
	"aac-rtmp-pusher/pkg/policy"
	"aac-rtmp-pusher/pkg/pusher"
	"aac-rtmp-pusher/pkg/rtmp"
)

const shutdownGrace = 3 * time.Second

func main() {
	cfg := config.Load()

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s [flags] <rtmp-url|-> <file.aac>\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.BoolVar(&cfg.Push.Realtime, "realtime", cfg.Push.Realtime, "pace frames at their media timestamps")
	pflag.BoolVar(&cfg.Push.Loop, "loop", cfg.Push.Loop, "rewind and repeat the file at end of stream")
	pflag.Uint32Var(&cfg.Push.StartTimestamp, "start-ts", cfg.Push.StartTimestamp, "timestamp of the first frame in milliseconds")
	pflag.BoolVar(&cfg.Policy.RequireAACLC, "require-lc", cfg.Policy.RequireAACLC, "refuse streams that are not AAC-LC")
	pflag.Uint32Var(&cfg.RTMP.ChunkSize, "chunk-size", cfg.RTMP.ChunkSize, "RTMP chunk size")
	pflag.StringVar(&cfg.Record.Path, "record", cfg.Record.Path, "also write the pushed audio to this file")
	pflag.StringVar(&cfg.Record.Format, "record-format", cfg.Record.Format, "recording format: mp4 or flv")
	pflag.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level")
	pflag.Parse()
	if pflag.NArg() != 2 {
		pflag.Usage()
		os.Exit(2)
	}

	logger := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, pflag.Arg(0), pflag.Arg(1), logger); err != nil {
		logger.WithError(err).Error("push failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, target, input string, logger *logrus.Logger) error {
	reader, err := aacfile.Open(input)
	if err != nil {
		return err
	}
	defer reader.Close()
	logger.WithFields(logrus.Fields{
		"input": input,
		"kind":  reader.Kind().String(),
	}).Info("input opened")

	var (
		pubs    pusher.Multi
		rtmpPub *rtmp.Publisher
	)
	if target != "-" {
		rtmpPub, err = rtmp.Dial(ctx, target, rtmp.Config{
			ChunkSize:   cfg.RTMP.ChunkSize,
			FlashVer:    cfg.RTMP.FlashVer,
			DialTimeout: cfg.RTMP.DialTimeout,
		}, logger)
		if err != nil {
			return err
		}
		pubs = append(pubs, rtmpPub)
	}
	if cfg.Record.Path != "" {
		rec, err := newRecorder(cfg.Record, logger)
		if err != nil {
			_ = pubs.Close()
			return err
		}
		pubs = append(pubs, rec)
	}
	if len(pubs) == 0 {
		return fmt.Errorf("nothing to publish to: give an rtmp url or a recording path")
	}

	p := pusher.New(pusher.Config{
		Realtime:       cfg.Push.Realtime,
		Loop:           cfg.Push.Loop,
		StartTimestamp: cfg.Push.StartTimestamp,
		Policy: policy.Config{
			RequireAACLC: cfg.Policy.RequireAACLC,
			ValidateASC:  cfg.Policy.ValidateASC,
		},
		Inspect: inspect.Config{BitrateWindow: cfg.Inspect.BitrateWindow},
	}, reader, pubs, logger)

	var summary pusher.Summary
	done := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(done)
		var err error
		summary, err = p.Run(gctx)
		return err
	})
	g.Go(func() error {
		select {
		case <-done:
			return nil
		case <-gctx.Done():
		}
		select {
		case <-done:
			return nil
		case <-time.After(shutdownGrace):
		}
		if rtmpPub == nil {
			return nil
		}
		logger.Warn("push loop still blocked, dropping connection")
		return rtmpPub.Abort()
	})
	err = g.Wait()
	if closeErr := pubs.Close(); closeErr != nil {
		logger.WithError(closeErr).Warn("close publishers")
	}

	logger.WithFields(logrus.Fields{
		"frames":         summary.Frames,
		"bytes":          summary.Bytes,
		"crc_frames":     summary.CRCFrames,
		"duration_ms":    summary.DurationMS,
		"bitrate":        summary.Bitrate,
		"config_changes": summary.ConfigChanges,
		"loops":          summary.Loops,
	}).Info("push finished")

	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		logger.Info("interrupted")
		return nil
	}
	return err
}

func newRecorder(cfg config.RecordConfig, logger *logrus.Logger) (pusher.Publisher, error) {
	switch cfg.Format {
	case "", "mp4":
		return archive.NewRecorder(archive.RecorderConfig{FragmentDuration: cfg.FragmentDuration}, cfg.Path, logger)
	case "flv":
		return archive.NewFLVRecorder(cfg.Path, logger)
	default:
		return nil, fmt.Errorf("unknown recording format %q", cfg.Format)
	}
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.WithField("level", cfg.Level).Warn("unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// Command fdohost runs a standalone view backend host.
//
// It creates a broker, prints the renderer and control descriptors, and
// immediately releases every buffer the renderer commits. It is meant for
// exercising renderers without an embedder.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/viewbackend"
	"github.com/gogpu/viewbackend/broker"
	"github.com/gogpu/viewbackend/config"
	"github.com/gogpu/viewbackend/exportable"
	"github.com/gogpu/viewbackend/importer"
	"github.com/gogpu/viewbackend/ownedfd"
	"github.com/gogpu/viewbackend/surface"
)

func main() {
	var (
		path    = flag.String("config", os.Getenv("FDOHOST_CONFIG"), "YAML configuration file")
		width   = flag.Uint("width", 0, "view width (overrides config)")
		height  = flag.Uint("height", 0, "view height (overrides config)")
		impName = flag.String("importer", "", "buffer importer (overrides config)")
	)
	flag.Parse()

	cfg, err := loadConfig(*path)
	if err != nil {
		log.Fatalf("fdohost: %v", err)
	}
	if *width != 0 {
		cfg.Width = uint32(*width)
	}
	if *height != 0 {
		cfg.Height = uint32(*height)
	}
	if *impName != "" {
		cfg.Importer = *impName
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("fdohost: %v", err)
	}

	logger := cfg.Log.Logger(os.Stderr)
	viewbackend.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("host failed", "err", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := viewbackend.Logger()

	device, closeDevice, err := openNoopDevice()
	if err != nil {
		return err
	}
	defer closeDevice()

	reg := importer.NewRegistry(&importer.Display{
		Device:     device,
		Extensions: cfg.DisplayExtensions(),
	})
	imp, err := importer.Select(reg, cfg.Importer)
	if err != nil {
		return err
	}

	b := broker.New(imp, broker.WithLeaseTimeout(cfg.LeaseTimeout))
	defer b.Close()

	if cfg.Extensions.Audio {
		b.InitializeAudio(broker.AudioHandler{
			Started: func(id uint32, channels int32, layout string, rate int32) {
				logger.Info("audio started", "stream", id, "channels", channels, "layout", layout, "rate", rate)
			},
			Packet: func(p *broker.PacketExport, id uint32, fd *ownedfd.FD, frames uint32) {
				logger.Debug("audio packet", "stream", id, "frames", frames)
				_ = fd.Close()
				p.Release()
			},
			Stopped: func(id uint32) { logger.Info("audio stopped", "stream", id) },
		})
	}
	if cfg.Extensions.VideoPlane {
		b.InitializeVideoPlane(broker.VideoPlaneHandler{
			Update: func(u *broker.VideoPlaneUpdate, id uint32, fd *ownedfd.FD, x, y, w, h int32, _ uint32) {
				logger.Debug("video plane update", "video", id, "x", x, "y", y, "width", w, "height", h)
				_ = fd.Close()
				u.Release()
			},
			EndOfStream: func(id uint32) { logger.Info("video plane ended", "video", id) },
		})
	}

	var raw *exportable.Raw
	release := func(buf *surface.Buffer) {
		raw.DispatchReleaseBuffer(buf)
		raw.DispatchFrameComplete()
	}
	raw, err = exportable.NewRaw(b, exportable.RawClient{
		ExportBuffer:       release,
		ExportDMABuf:       release,
		ExportSharedMemory: release,
	}, cfg.Width, cfg.Height)
	if err != nil {
		return err
	}
	defer raw.Close()

	rendererFD, err := b.CreateClient()
	if err != nil {
		return err
	}
	controlFD, err := raw.ViewBackend().ClientFD()
	if err != nil {
		_ = rendererFD.Close()
		return err
	}
	fmt.Printf("renderer-fd=%d control-fd=%d importer=%s size=%dx%d\n",
		rendererFD.Raw(), controlFD.Raw(), imp.Kind(), cfg.Width, cfg.Height)

	err = b.Run(ctx)
	_ = ownedfd.CloseAll(rendererFD, controlFD)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// openNoopDevice opens a device on the noop HAL backend. The host never
// samples the textures it imports, so no real GPU is needed.
func openNoopDevice() (hal.Device, func(), error) {
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("noop instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, nil, errors.New("noop backend exposes no adapter")
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, nil, fmt.Errorf("noop device: %w", err)
	}
	return open.Device, func() {
		open.Device.Destroy()
		instance.Destroy()
	}, nil
}

// Command tpx3stream is the live acquisition daemon: it accepts one
// detector connection, decodes its packet stream, and serves processed
// frames to a configured client socket, looping back to accept after each
// client session ends.
package main

import (
	"fmt"
	"net"
	"os"

	"github.com/spf13/pflag"

	"github.com/wb2osz-labs/tpx3stream/internal/daemoncfg"
	"github.com/wb2osz-labs/tpx3stream/internal/settings"
	"github.com/wb2osz-labs/tpx3stream/internal/spectrum"
	"github.com/wb2osz-labs/tpx3stream/internal/spim"
	"github.com/wb2osz-labs/tpx3stream/internal/streamrt"
	"github.com/wb2osz-labs/tpx3stream/internal/tdcref"
	"github.com/wb2osz-labs/tpx3stream/internal/tpxlog"
	"github.com/wb2osz-labs/tpx3stream/internal/wire"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "Path to tpx3stream.yaml daemon config.")
	debug := pflag.Bool("debug", false, "Bind the client socket to 127.0.0.1 instead of the production address.")
	host := pflag.String("host", "", "Override the client listen host from the config file.")
	port := pflag.Int("port", 0, "Override the client listen port from the config file.")
	help := pflag.Bool("help", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - Timepix3 live acquisition daemon\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	cfg := daemoncfg.Default()
	if *configPath != "" {
		loaded, err := daemoncfg.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "tpx3stream: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	} else if fromSearch, err := daemoncfg.LoadFromSearchPath(); err == nil {
		cfg = fromSearch
	}

	if *debug {
		cfg.ApplyDebug()
	}
	if *host != "" {
		cfg.ClientHost = *host
	}
	if *port != 0 {
		cfg.ClientPort = *port
	}

	logger := tpxlog.New(os.Stdout)

	mosaic, err := cfg.MosaicTable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "tpx3stream: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, mosaic, logger); err != nil {
		fmt.Fprintf(os.Stderr, "tpx3stream: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg daemoncfg.Config, mosaic wire.MosaicTable, logger *tpxlog.Logger) error {
	detAddr := fmt.Sprintf("%s:%d", cfg.DetectorHost, cfg.DetectorPort)
	detListener, err := net.Listen("tcp", detAddr)
	if err != nil {
		return fmt.Errorf("listening for detector on %s: %w", detAddr, err)
	}
	defer detListener.Close()

	detConn, err := detListener.Accept()
	if err != nil {
		return fmt.Errorf("accepting detector connection: %w", err)
	}
	defer detConn.Close()
	logger.Connect("detector", detConn.RemoteAddr().String())
	_ = streamrt.TuneSocket(detConn, cfg.RecvSockBuf)

	clientAddr := fmt.Sprintf("%s:%d", cfg.ClientHost, cfg.ClientPort)
	clientListener, err := net.Listen("tcp", clientAddr)
	if err != nil {
		return fmt.Errorf("listening for clients on %s: %w", clientAddr, err)
	}
	defer clientListener.Close()

	for {
		clientConn, err := clientListener.Accept()
		if err != nil {
			logger.Error("accept", "transport", err)
			continue
		}

		if err := serveClient(clientConn, detConn, mosaic, logger); err != nil {
			logger.Error("session", "transport", err)
		}
		logger.Disconnect("client", clientConn.RemoteAddr().String(), nil)
	}
}

// serveClient reads the client's config blob, then wires the reader/builder/
// writer pipeline for exactly one session.
func serveClient(clientConn, detConn net.Conn, mosaic wire.MosaicTable, logger *tpxlog.Logger) error {
	defer clientConn.Close()
	_ = streamrt.TuneSocket(clientConn, streamrt.ReadBufferSize)

	blob := make([]byte, 20)
	n, err := readConfigBlob(clientConn, blob)
	if err != nil {
		return fmt.Errorf("reading config blob: %w", err)
	}

	cfg, err := settings.Parse(blob[:n])
	if err != nil {
		logger.Error("config", "SetBin", err)
		return err
	}
	logger.Event(tpxlog.KindMode, cfg.Mode.String(), "acquisition mode selected")

	dec := wire.NewDecoder(mosaic)
	events := make(chan wire.Event, streamrt.EventChannelCapacity)
	frames := make(chan streamrt.Frame, 1)
	done := make(chan struct{})

	readErrCh := make(chan error, 1)
	go func() {
		err := streamrt.ReadEvents(detConn, dec, events, done)
		close(events)
		readErrCh <- err
	}()

	writeErrCh := make(chan error, 1)
	go func() {
		writeErrCh <- streamrt.WriteFrames(clientConn, frames)
	}()

	dispatch(cfg, events, frames)
	close(frames)
	close(done)

	if werr := <-writeErrCh; werr != nil {
		return werr
	}
	return nil
}

// readConfigBlob reads into buf (20 bytes) until the running total is
// exactly 16 or 20 bytes and returns at whichever comes first, so a total
// of exactly 16 after any Read is taken as the shorter blob variant. On a
// read error before either size is reached it returns the partial count
// and the error.
func readConfigBlob(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if total == 16 || total == 20 {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// dispatch routes decoded events to the mode-appropriate builder and emits
// frames as they complete. It owns the decode worker's mutable TDC
// reference exclusively, so only one goroutine ever touches it.
func dispatch(cfg settings.Settings, events <-chan wire.Event, frames chan<- streamrt.Frame) {
	laserRef := tdcref.NewPeriodic(wire.TdcOneRising)

	switch cfg.Mode {
	case settings.ModeSpim:
		runSpim(cfg, events, frames, laserRef)
	default:
		runSpectrum(cfg, events, frames, laserRef)
	}
}

func runSpectrum(cfg settings.Settings, events <-chan wire.Event, frames chan<- streamrt.Frame, laserRef *tdcref.PeriodicTdcRef) {
	variant := spectrum.Live2D
	if cfg.Bin {
		variant = spectrum.Live1D
	}
	if cfg.Mode == settings.ModeTimeResolvedSpectrum {
		if cfg.Bin {
			variant = spectrum.LiveTR1D
		} else {
			variant = spectrum.LiveTR2D
		}
	}

	builder := spectrum.New(variant, cfg.Bin, cfg.Cumul, cfg.ByteDepth,
		int(cfg.XScan), int(cfg.YScan),
		wire.CoarseTick(int64(cfg.TimeDelay)), wire.CoarseTick(int64(cfg.TimeWidth)))

	for ev := range events {
		switch ev.Kind {
		case wire.EventPixelHit:
			builder.Accept(ev.Pixel.X, int(ev.Pixel.Y), ev.Pixel.Time, laserRef.LastTime, laserRef.Period)
		case wire.EventTdcEdge:
			switch ev.Tdc.Type {
			case wire.TdcOneRising, wire.TdcOneFalling:
				if err := laserRef.Update(ev.Tdc.Time, ev.Tdc.Type == wire.TdcOneFalling); err == nil && laserRef.State == tdcref.Locked {
					frame := builder.Build(laserRef.LastTime, laserRef.Counter)
					select {
					case frames <- streamrt.Frame{Header: frame.Header, Payload: append(frame.Payload, '\n')}:
					default:
					}
				}
			}
		}
	}
}

func runSpim(cfg settings.Settings, events <-chan wire.Event, frames chan<- streamrt.Frame, laserRef *tdcref.PeriodicTdcRef) {
	builder := spim.New(int(cfg.XSpim), int(cfg.YSpim), cfg.SpimOverscanY, 1, false)

	for ev := range events {
		switch ev.Kind {
		case wire.EventPixelHit:
			builder.Accept(ev.Pixel.Time, laserRef.BeginFrame, laserRef.Period, laserRef.LowTime, 0)
		case wire.EventTdcEdge:
			switch ev.Tdc.Type {
			case wire.TdcOneRising, wire.TdcOneFalling:
				if err := laserRef.Update(ev.Tdc.Time, ev.Tdc.Type == wire.TdcOneFalling); err == nil && laserRef.State == tdcref.Locked && builder.Len() > 0 {
					out := spim.BuildOutput(builder.Indices())
					select {
					case frames <- streamrt.Frame{Payload: out.Bytes()}:
					default:
					}
					builder.Reset()
				}
			}
		}
	}
}

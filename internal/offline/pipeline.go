// Package offline implements the file-to-files post-processing pipeline:
// decode a concatenated packet file, cluster-collapse and
// coincidence-match the electron stream, and append each output field to
// its own raw or CSV file. The whole input is read up front, sorted and
// normalized, then walked once writing each derived field out.
package offline

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/wb2osz-labs/tpx3stream/internal/cluster"
	"github.com/wb2osz-labs/tpx3stream/internal/coincidence"
	"github.com/wb2osz-labs/tpx3stream/internal/spim"
	"github.com/wb2osz-labs/tpx3stream/internal/tdcref"
	"github.com/wb2osz-labs/tpx3stream/internal/wire"
)

// g2NoMatchSentinel marks a coincidence record with no paired IsiBox/g2
// timestamp.
const g2NoMatchSentinel = int16(-5000)

// channelNone marks a per-field record whose photon channel is not
// applicable (there is none in this pipeline's minimal CLI contract, which
// carries no explicit channel selection).
const channelNone = uint8(0xFF)

// defaultDelay and defaultWidth are the coincidence-window parameters used
// when none are supplied: the offline CLI's positional contract carries no
// delay/time_width arguments the way the live daemon's configuration blob
// does. Recorded as an Open Question decision in DESIGN.md.
const (
	defaultDelay = int64(0)
	defaultWidth = int64(1000)
)

// Options configures one offline run, mirroring the CLI's positional
// contract plus the fixed output directory.
type Options struct {
	InputPath     string
	OutputDir     string
	IsSpim        bool
	XSpim, YSpim  int
	RemoveCluster bool
	Mosaic        wire.MosaicTable
}

// readPackets reads the whole input file as a sequence of 8-byte packets.
// The input has no length prefix; end-of-file terminates, and a trailing
// partial packet is simply dropped rather than erroring.
func readPackets(path string) ([][wire.PacketSize]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<20)
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("offline: reading %s: %w", path, err)
	}

	whole := len(data) - len(data)%wire.PacketSize
	return wire.Packets(data[:whole])
}

// Run executes the full decode/cluster/coincidence pipeline and writes
// every per-field output file under opts.OutputDir.
func Run(opts Options) error {
	packets, err := readPackets(opts.InputPath)
	if err != nil {
		return err
	}

	dec := wire.NewDecoder(opts.Mosaic)

	var electronWraps int64
	var lastRawPixel wire.Tick
	var electrons []cluster.Electron

	var laserRef *tdcref.PeriodicTdcRef
	var photons []coincidence.PhotonEvent

	for _, p := range packets {
		ev, derr := dec.Decode(p)
		if derr != nil {
			continue // input-malformed: dropped, pipeline continues
		}

		switch ev.Kind {
		case wire.EventPixelHit:
			raw := ev.Pixel.Time
			if raw < lastRawPixel {
				electronWraps++
			}
			lastRawPixel = raw
			corrected := raw + wire.Tick(electronWraps)*wire.ElectronOverflowTicks

			electrons = append(electrons, cluster.Electron{
				Time: corrected,
				X:    ev.Pixel.X,
				Y:    int(ev.Pixel.Y),
				Tot:  ev.Pixel.ToT,
			})

		case wire.EventTdcEdge:
			switch ev.Tdc.Type {
			case wire.TdcOneRising, wire.TdcOneFalling:
				if laserRef == nil {
					laserRef = tdcref.NewPeriodic(wire.TdcOneRising)
				}
				_ = laserRef.Update(ev.Tdc.Time, ev.Tdc.Type == wire.TdcOneFalling)
			case wire.TdcTwoRising, wire.TdcTwoFalling:
				photons = append(photons, coincidence.PhotonEvent{
					Time:    int64(ev.Tdc.Time) / 40,
					Channel: uint8(ev.Tdc.Type),
				})
			}
		}
	}

	sort.SliceStable(electrons, func(i, j int) bool { return electrons[i].Time < electrons[j].Time })
	if opts.RemoveCluster {
		electrons, _ = cluster.TryClean(electrons, cluster.DefaultCorrection)
	}
	sort.SliceStable(photons, func(i, j int) bool { return photons[i].Time < photons[j].Time })

	spimBuilder := spim.New(opts.XSpim, opts.YSpim, 1, 1, false)

	spectrumWidth := opts.Mosaic.Width()
	if spectrumWidth == 0 {
		spectrumWidth = wire.ChipWidth
	}
	allSpectrum := make([]uint64, spectrumWidth+1) // last bucket: total photon count
	corrSpectrum := make([]uint64, spectrumWidth+1)

	electronEvents := make([]coincidence.ElectronEvent, 0, len(electrons))
	for _, e := range electrons {
		if e.X >= 0 && e.X < spectrumWidth {
			allSpectrum[e.X]++
		}

		spimIndex := uint32(coincidence.NoSpimIndex)
		if opts.IsSpim && laserRef != nil && laserRef.State == tdcref.Locked {
			if line, col, ok := spim.Detect(e.Time, laserRef.BeginFrame, laserRef.Period, laserRef.LowTime, opts.XSpim, opts.YSpim, 1); ok {
				spimIndex = spimBuilder.Index(line, col, 0)
			}
		}

		electronEvents = append(electronEvents, coincidence.ElectronEvent{
			Time:        e.Time.CoarseTicks(),
			X:           uint16(e.X),
			Y:           uint16(e.Y),
			Tot:         e.Tot,
			ClusterSize: uint16(max(e.ClusterSize, 1)),
			SpimIndex:   spimIndex,
		})
	}
	allSpectrum[spectrumWidth] = uint64(len(photons))

	engine := coincidence.NewEngine(defaultDelay, defaultWidth)
	matches := engine.Match(electronEvents, photons)
	for _, m := range matches {
		if int(m.X) < spectrumWidth {
			corrSpectrum[m.X]++
		}
	}
	corrSpectrum[spectrumWidth] = uint64(len(photons))

	of, err := OpenOutputFiles(opts.OutputDir)
	if err != nil {
		return err
	}
	defer of.Close()

	for _, m := range matches {
		if err := of.TH.WriteI16(m.RelTime); err != nil {
			return err
		}
		if err := of.TAbsH.WriteU64(m.AbsTime); err != nil {
			return err
		}
		ch := channelNone
		if m.Channel != 0 {
			ch = m.Channel
		}
		if err := of.Channel.WriteU8(ch); err != nil {
			return err
		}
		if err := of.XH.WriteU16(m.X); err != nil {
			return err
		}
		if err := of.YH.WriteU16(m.Y); err != nil {
			return err
		}
		if err := of.ToT.WriteU16(m.Tot); err != nil {
			return err
		}
		if err := of.CS.WriteU16(m.ClusterSize); err != nil {
			return err
		}
		if err := of.SI.WriteU32(m.SpimIndex); err != nil {
			return err
		}
		g2 := g2NoMatchSentinel
		if m.G2Time != nil {
			g2 = *m.G2Time
		}
		if err := of.G2TH.WriteI16(g2); err != nil {
			return err
		}
	}

	for _, d := range engine.DoubleHist {
		if err := of.DoubleTH.WriteI16(d.RelTime1); err != nil {
			return err
		}
		if err := of.DoubleTH.WriteI16(d.RelTime2); err != nil {
			return err
		}
	}

	if err := of.Spec.WriteCSVLine(allSpectrum); err != nil {
		return err
	}
	if err := of.CSpec.WriteCSVLine(corrSpectrum); err != nil {
		return err
	}

	return nil
}

// Package coincidence matches electron events against a photon TDC stream
// with a sliding minimum-index window.
package coincidence

import "math"

// NoSpimIndex is the sentinel SpimIndex value for an electron that was not
// produced by a spim acquisition.
const NoSpimIndex = math.MaxUint32

// photonListStep is the amortization divisor controlling how far the
// shared photon cursor advances per matched electron.
const photonListStep = 10

// windowSlack is the tick slack added to the break condition of the inner
// photon scan, so a photon just past an electron's nominal window is
// still considered.
const windowSlack = 10_000

// PhotonEvent is one photon TDC edge. Its time is in 20 ps units, six
// times finer than the 120 ps tick base, hence the "/6" in the match
// predicate below.
type PhotonEvent struct {
	Time    int64
	Channel uint8
	G2Time  *int16
}

// ElectronEvent is one electron hit (post-clustering), time in the same
// 120 ps tick base as PhotonEvent.Time/6.
type ElectronEvent struct {
	Time        int64
	X, Y        uint16
	Tot         uint16
	ClusterSize uint16
	SpimIndex   uint32 // NoSpimIndex if not from a spim acquisition
}

// Match is one recorded electron-photon coincidence.
type Match struct {
	RelTime     int16
	Channel     uint8
	X, Y        uint16
	Tot         uint16
	ClusterSize uint16
	SpimIndex   uint32
	AbsTime     uint64
	G2Time      *int16
}

// DoubleMatch records the relative times of the first two photons found
// coincident with the same electron, each in the same rel-time base as
// Match.RelTime.
type DoubleMatch struct {
	RelTime1 int16
	RelTime2 int16
}

// Engine holds the sliding cursor and accumulated double-photon histogram
// across repeated calls to Match.
type Engine struct {
	Delay, Width int64
	MinIndex     int
	DoubleHist   []DoubleMatch
}

func NewEngine(delay, width int64) *Engine {
	return &Engine{Delay: delay, Width: width}
}

// coincides implements the coincidence-window match predicate:
// (p.t/6) < e.t+delay+width  AND  e.t+delay < (p.t/6)+width.
func (e *Engine) coincides(electronTime, photonTime int64) bool {
	p6 := photonTime / 6
	return p6 < electronTime+e.Delay+e.Width && electronTime+e.Delay < p6+e.Width
}

// relTime converts a photon's native-resolution time into the rel-time
// base used by Match.RelTime: (photonTime/6) - (electronTime+delay).
func relTime(photonTime, electronTime, delay int64) int64 {
	return photonTime/6 - (electronTime + delay)
}

// Match scans electrons (time-sorted) against photons (time-sorted, shared
// across repeated calls — MinIndex persists on Engine). Every photon
// coincident with an electron produces its own Match; the first two
// coincident photons for an electron additionally record their rel times
// into DoubleHist.
func (e *Engine) Match(electrons []ElectronEvent, photons []PhotonEvent) []Match {
	matches := make([]Match, 0, len(electrons))

	for _, el := range electrons {
		indexToIncrease := -1
		photonsPerElectron := 0
		var firstCorrPhotonTime int64
		index := 0

		for i := e.MinIndex; i < len(photons); i++ {
			p := photons[i]

			if e.coincides(el.Time, p.Time) {
				rel := relTime(p.Time, el.Time, e.Delay)
				matches = append(matches, Match{
					RelTime:     int16(rel),
					Channel:     p.Channel,
					X:           el.X,
					Y:           el.Y,
					Tot:         el.Tot,
					ClusterSize: el.ClusterSize,
					SpimIndex:   el.SpimIndex,
					AbsTime:     uint64(el.Time),
					G2Time:      p.G2Time,
				})
				if indexToIncrease < 0 {
					indexToIncrease = index
				}
				photonsPerElectron++
				if photonsPerElectron == 2 {
					e.DoubleHist = append(e.DoubleHist, DoubleMatch{
						RelTime1: int16(relTime(firstCorrPhotonTime, el.Time, e.Delay)),
						RelTime2: int16(rel),
					})
				}
				firstCorrPhotonTime = p.Time
			}

			if p.Time/6 > el.Time+e.Delay+windowSlack {
				break
			}
			index++
		}

		if indexToIncrease >= 0 {
			e.MinIndex += indexToIncrease / photonListStep
		}
	}

	return matches
}

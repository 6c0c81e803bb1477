package spectrum

import "fmt"

// HeaderLine renders the frame header, including the "measurementID"
// quirk (a misplaced closing quote before the colon:
// `measurementID:"Null",`), preserved byte-for-byte rather than silently
// fixed — a downstream client may already depend on the exact bytes. See
// SPEC_FULL.md for the rationale.
func HeaderLine(timeAtFrameSeconds float64, frameNumber uint64, dataSize, bitDepth, width, height int) []byte {
	s := fmt.Sprintf(
		`{"timeAtFrame":%g,"frameNumber":%d,"measurementID:"Null","dataSize":%d,"bitDepth":%d,"width":%d,"height":%d}`+"\n",
		timeAtFrameSeconds, frameNumber, dataSize, bitDepth, width, height,
	)
	return []byte(s)
}

// Frame is a fully built output frame: a newline-terminated header line
// and the binary payload. Payload does not carry the trailing newline;
// Bytes appends it.
type Frame struct {
	Header  []byte
	Payload []byte
}

// Bytes concatenates Header and Payload plus the trailing payload newline,
// ready to write to the client socket in one call.
func (f Frame) Bytes() []byte {
	out := make([]byte, 0, len(f.Header)+len(f.Payload)+1)
	out = append(out, f.Header...)
	out = append(out, f.Payload...)
	out = append(out, '\n')
	return out
}

package trigno

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/c360/emgstream/errors"
)

const (
	// FrameSize is the fixed wire size of one EMG data frame
	FrameSize = 64
	// SlotsPerFrame is the number of float32 channel slots per frame
	SlotsPerFrame = 16
)

// Command and trigger tokens sent on the command socket. The base station
// expects the trigger tokens terminated with a double CRLF.
const (
	cmdStart        = "START"
	cmdTriggerStart = "TRIGGER START\r\n\r\n"
	cmdTriggerStop  = "TRIGGER STOP\r\n\r\n"
)

// decodeFrame unpacks a 64-byte frame into 16 little-endian float32 values
func decodeFrame(buf []byte, out *[SlotsPerFrame]float32) error {
	if len(buf) != FrameSize {
		return errors.WrapInvalid(
			fmt.Errorf("frame length %d, expected %d: %w", len(buf), FrameSize, errors.ErrFrameLength),
			"Client", "decodeFrame", "frame validation")
	}
	for i := 0; i < SlotsPerFrame; i++ {
		bits := binary.LittleEndian.Uint32(buf[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return nil
}

/*
Package wire encodes and decodes the fixed binary datagrams exchanged
with the simulator over UDP.

Message Types:
 1. Beacon (multicast, unsolicited): announces a running simulator,
    its protocol version and the port it listens on.
 2. Subscribe (unicast request): asks the simulator to push a value
    at a given frequency under a small numeric index. Frequency 0
    cancels the subscription for that index.
 3. Value batch (unicast response): periodic packet carrying one
    (index, float32) tuple per subscribed value.
 4. Command (unicast request): fire-and-forget command execution.
 5. Write (unicast request): sets a value on the simulator side.
 6. Text batch (multicast, companion feed): JSON object mapping paths
    to string values, plus control metadata.

Message Structure (Binary, little-endian):

Beacon:

	[5 bytes]  Tag "BECN\x00"
	[1 byte]   Beacon major version
	[1 byte]   Beacon minor version
	[4 bytes]  Host application id (int32)
	[4 bytes]  Simulator version (int32)
	[4 bytes]  Role (uint32)
	[2 bytes]  Listening port (uint16)
	[n bytes]  Null-terminated hostname

Subscribe (exactly 413 bytes):

	[5 bytes]   Tag "RREF\x00"
	[4 bytes]   Frequency in Hz (int32)
	[4 bytes]   Index (int32)
	[400 bytes] Path, null-terminated, right-padded with spaces

Value batch (at most 1472 bytes):

	[5 bytes]  Tag "RREF,"
	[n times]:
		[4 bytes] Index (int32)
		[4 bytes] Value (float32)

Command:

	[5 bytes]  Tag "CMND0"
	[n bytes]  Command path

Write (exactly 509 bytes):

	[5 bytes]   Tag "DREF\x00"
	[4 bytes]   Value (float32, int32 or uint32 depending on type)
	[500 bytes] Path, null-terminated, right-padded with spaces

All decoders are pure functions and reject malformed input by
returning ok=false; a truncated trailing tuple in a value batch is
dropped rather than failing the whole packet.
*/
package wire

import (
	"bytes"
	"encoding/binary"
	"math"
)

const (
	// Datagram tags, 5 bytes each.
	tagBeacon     = "BECN\x00"
	tagSubscribe  = "RREF\x00"
	tagValueBatch = "RREF,"
	tagCommand    = "CMND0"
	tagWrite      = "DREF\x00"

	// TagLen is the length of every datagram tag.
	TagLen = 5

	// MaxDatagramSize is the largest packet either side sends,
	// the Ethernet-safe UDP payload (MTU - IP header - UDP header).
	MaxDatagramSize = 1472

	// SubscribeFrameLen is the fixed size of a subscribe request.
	SubscribeFrameLen = 413

	// WriteFrameLen is the fixed size of a write request.
	WriteFrameLen = 509

	subscribePathLen = 400
	writePathLen     = 500

	valueTupleLen = 8
)

// Beacon is a decoded simulator announcement.
type Beacon struct {
	MajorVersion uint8
	MinorVersion uint8
	HostID       int32
	Version      int32
	Role         uint32
	Port         uint16
	Hostname     string
}

// ValueUpdate is one (index, value) tuple from a value batch.
type ValueUpdate struct {
	Index uint32
	Value float32
}

// TextBatch is a decoded companion-feed packet. Values holds the
// path to string-value pairs; Timestamp and Interval are control
// metadata and never appear in Values.
type TextBatch struct {
	Values      map[string]string
	Timestamp   float64
	Interval    float64
	HasInterval bool
}

// EncodeSubscribe builds the fixed 413-byte subscribe frame.
// A frequency of 0 cancels a prior subscription for the index.
func EncodeSubscribe(index uint32, path string, frequencyHz int) []byte {
	var buf bytes.Buffer
	buf.WriteString(tagSubscribe)
	binary.Write(&buf, binary.LittleEndian, int32(frequencyHz))
	binary.Write(&buf, binary.LittleEndian, int32(index))
	writePaddedPath(&buf, path, subscribePathLen)
	return buf.Bytes()
}

// EncodeCommand builds a command-execute frame. Held commands append
// a "/begin" or "/end" suffix to the path before encoding.
func EncodeCommand(path string) []byte {
	var buf bytes.Buffer
	buf.WriteString(tagCommand)
	buf.WriteString(path)
	return buf.Bytes()
}

// EncodeWriteFloat builds the fixed 509-byte write frame for a float
// value.
func EncodeWriteFloat(path string, value float32) []byte {
	return encodeWrite(path, math.Float32bits(value))
}

// EncodeWriteInt builds the write frame for an integer value.
func EncodeWriteInt(path string, value int32) []byte {
	return encodeWrite(path, uint32(value))
}

// EncodeWriteBool builds the write frame for a boolean value.
func EncodeWriteBool(path string, value bool) []byte {
	var v uint32
	if value {
		v = 1
	}
	return encodeWrite(path, v)
}

func encodeWrite(path string, bits uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString(tagWrite)
	binary.Write(&buf, binary.LittleEndian, bits)
	writePaddedPath(&buf, path, writePathLen)
	return buf.Bytes()
}

func writePaddedPath(buf *bytes.Buffer, path string, width int) {
	if len(path) >= width {
		path = path[:width-1]
	}
	buf.WriteString(path)
	buf.WriteByte(0)
	for i := len(path) + 1; i < width; i++ {
		buf.WriteByte(' ')
	}
}

// DecodeBeacon parses a simulator announcement packet.
func DecodeBeacon(data []byte) (*Beacon, bool) {
	if len(data) < TagLen+16 || string(data[:TagLen]) != tagBeacon {
		return nil, false
	}

	remaining := data[TagLen:]

	b := &Beacon{}
	b.MajorVersion = remaining[0]
	b.MinorVersion = remaining[1]
	b.HostID = int32(binary.LittleEndian.Uint32(remaining[2:6]))
	b.Version = int32(binary.LittleEndian.Uint32(remaining[6:10]))
	b.Role = binary.LittleEndian.Uint32(remaining[10:14])
	b.Port = binary.LittleEndian.Uint16(remaining[14:16])
	remaining = remaining[16:]

	if i := bytes.IndexByte(remaining, 0); i >= 0 {
		remaining = remaining[:i]
	}
	b.Hostname = string(remaining)

	return b, true
}

// DecodeValueBatch parses a periodic value packet into its (index,
// value) tuples. A packet with the wrong tag is rejected; a truncated
// trailing tuple is dropped.
//
// Values in (-0.001, 0.0) are normalized to +0.0 here, before any
// caller sees them: the peer emits negative-zero artifacts for some
// values.
func DecodeValueBatch(data []byte) ([]ValueUpdate, bool) {
	if len(data) < TagLen || string(data[:TagLen]) != tagValueBatch {
		return nil, false
	}

	remaining := data[TagLen:]
	updates := make([]ValueUpdate, 0, len(remaining)/valueTupleLen)

	for len(remaining) >= valueTupleLen {
		idx := binary.LittleEndian.Uint32(remaining[:4])
		value := math.Float32frombits(binary.LittleEndian.Uint32(remaining[4:8]))
		remaining = remaining[valueTupleLen:]

		if (value < 0.0 && value > -0.001) ||
			(value == 0.0 && math.Signbit(float64(value))) {
			value = 0.0
		}

		updates = append(updates, ValueUpdate{Index: idx, Value: value})
	}

	return updates, true
}

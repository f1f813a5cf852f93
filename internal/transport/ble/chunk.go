// Package ble implements the Bluetooth LE transport: a GATT peripheral
// carrying the same sync protocol as the LAN transport, reframed for
// small MTUs.
package ble

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
)

// Transfer framing opcodes. Every data-characteristic packet starts
// with one opcode byte.
const (
	packetStart byte = 0x01 // followed by uint32 big-endian chunk count
	packetData  byte = 0x02 // followed by one payload chunk
	packetEnd   byte = 0x03 // no payload
)

// compressThreshold is the payload size below which gzip is skipped;
// tiny notes grow under compression.
const compressThreshold = 1024

// chunkPayload slices data into MTU-sized pieces, reserving one byte
// per packet for the opcode.
func chunkPayload(data []byte, mtu int) [][]byte {
	chunkSize := mtu - 1
	if chunkSize < 1 {
		chunkSize = 1
	}

	chunks := make([][]byte, 0, (len(data)+chunkSize-1)/chunkSize)
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[off:end])
	}
	return chunks
}

// startPacket frames the transfer header carrying the chunk count.
func startPacket(chunkCount int) []byte {
	pkt := make([]byte, 5)
	pkt[0] = packetStart
	binary.BigEndian.PutUint32(pkt[1:], uint32(chunkCount))
	return pkt
}

func dataPacket(chunk []byte) []byte {
	pkt := make([]byte, 1+len(chunk))
	pkt[0] = packetData
	copy(pkt[1:], chunk)
	return pkt
}

func endPacket() []byte {
	return []byte{packetEnd}
}

// maybeCompress gzips payloads above the threshold, keeping the raw
// bytes whenever compression does not actually shrink them.
func maybeCompress(data []byte) ([]byte, bool) {
	if len(data) <= compressThreshold {
		return data, false
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return data, false
	}
	if err := zw.Close(); err != nil {
		return data, false
	}
	if buf.Len() >= len(data) {
		return data, false
	}
	return buf.Bytes(), true
}

// decompressOrRaw gunzips the payload, falling back to the raw bytes
// when they were never compressed. Peers omit the compression flag on
// small payloads.
func decompressOrRaw(data []byte) []byte {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return data
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return data
	}
	return out
}

// assembler rebuilds one framed transfer from incoming packets.
type assembler struct {
	active   bool
	expected int
	received int
	buf      bytes.Buffer
}

func (a *assembler) reset() {
	a.active = false
	a.expected = 0
	a.received = 0
	a.buf.Reset()
}

// feed consumes one packet. It returns the assembled payload and true
// when the end packet arrives; otherwise (nil, false).
func (a *assembler) feed(pkt []byte) ([]byte, bool, error) {
	if len(pkt) == 0 {
		return nil, false, fmt.Errorf("empty packet")
	}

	switch pkt[0] {
	case packetStart:
		if len(pkt) < 5 {
			return nil, false, fmt.Errorf("short start packet: %d bytes", len(pkt))
		}
		a.reset()
		a.active = true
		a.expected = int(binary.BigEndian.Uint32(pkt[1:5]))
		return nil, false, nil

	case packetData:
		if !a.active {
			return nil, false, fmt.Errorf("data packet outside transfer")
		}
		a.buf.Write(pkt[1:])
		a.received++
		return nil, false, nil

	case packetEnd:
		if !a.active {
			return nil, false, fmt.Errorf("end packet outside transfer")
		}
		if a.received != a.expected {
			got, want := a.received, a.expected
			a.reset()
			return nil, false, fmt.Errorf("incomplete transfer: %d/%d chunks", got, want)
		}
		payload := make([]byte, a.buf.Len())
		copy(payload, a.buf.Bytes())
		a.reset()
		return payload, true, nil

	default:
		return nil, false, fmt.Errorf("unknown packet opcode 0x%02x", pkt[0])
	}
}

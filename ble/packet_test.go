package ble

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"testing"
)

func rawPacket(pitchBits, rollBits uint32) []byte {
	b := make([]byte, PacketSize)
	binary.LittleEndian.PutUint32(b[0:4], pitchBits)
	binary.LittleEndian.PutUint32(b[4:8], rollBits)
	return b
}

func TestParseSample_Values(t *testing.T) {
	data := rawPacket(math.Float32bits(12.5), math.Float32bits(-3.25))
	s, err := ParseSample(data)
	if err != nil {
		t.Fatalf("ParseSample() error: %v", err)
	}
	if s.Pitch != 12.5 || s.Roll != -3.25 {
		t.Fatalf("sample=%+v want pitch=12.5 roll=-3.25", s)
	}
}

func TestParseSample_RoundTripBits(t *testing.T) {
	cases := [][2]uint32{
		{0x00000000, 0x00000000},
		{0x80000000, 0x00000000}, // -0
		{0x00000001, 0x80000001}, // subnormals
		{0x7f7fffff, 0xff7fffff}, // ±max
		{math.Float32bits(5.0), math.Float32bits(-10.0)},
	}

	rng := rand.New(rand.NewSource(1))
	for len(cases) < 2000 {
		p, r := rng.Uint32(), rng.Uint32()
		if !finite(math.Float32frombits(p)) || !finite(math.Float32frombits(r)) {
			continue
		}
		cases = append(cases, [2]uint32{p, r})
	}

	for _, c := range cases {
		in := rawPacket(c[0], c[1])
		s, err := ParseSample(in)
		if err != nil {
			t.Fatalf("ParseSample(%x) error: %v", in, err)
		}
		if out := EncodeSample(s); !bytes.Equal(out, in) {
			t.Fatalf("round trip %x -> %x", in, out)
		}
	}
}

func TestParseSample_RejectsWrongSize(t *testing.T) {
	for _, n := range []int{0, 1, 4, 7, 9, 16, 20} {
		_, err := ParseSample(make([]byte, n))
		if !errors.Is(err, ErrInvalidPacketSize) {
			t.Fatalf("len=%d err=%v want ErrInvalidPacketSize", n, err)
		}
	}
}

func TestParseSample_RejectsNonFinite(t *testing.T) {
	nan := math.Float32bits(float32(math.NaN()))
	inf := math.Float32bits(float32(math.Inf(1)))
	cases := [][]byte{
		rawPacket(nan, 0),
		rawPacket(0, nan),
		rawPacket(inf, 0),
		rawPacket(0, math.Float32bits(float32(math.Inf(-1)))),
	}
	for _, data := range cases {
		if _, err := ParseSample(data); !errors.Is(err, ErrMalformedSample) {
			t.Fatalf("data=%x err=%v want ErrMalformedSample", data, err)
		}
	}
}

func TestSampleString(t *testing.T) {
	got := Sample{Pitch: 1.5, Roll: -2.25}.String()
	if got != "pitch=1.50° roll=-2.25°" {
		t.Fatalf("String()=%q", got)
	}
}

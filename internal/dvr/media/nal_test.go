package media

import (
	"bytes"
	"testing"
)

func TestExtractH264FiltersVendorNAL(t *testing.T) {
	sc := []byte{0x00, 0x00, 0x00, 0x01}
	var payload []byte
	// Vendor prefix NAL: first byte 0xDE -> type 0x1E=30, well outside 1..13.
	payload = append(payload, sc...)
	payload = append(payload, 0xDE)
	payload = append(payload, make([]byte, 21)...)
	// SPS (type 7)
	sps := append(append([]byte{}, sc...), 0x67, 0xAA, 0xBB)
	payload = append(payload, sps...)
	// IDR slice (type 5)
	idr := append(append([]byte{}, sc...), 0x65, 0xCC, 0xDD)
	payload = append(payload, idr...)
	// Type 0x18 = 24, an RTP aggregation type, must be discarded.
	agg := append(append([]byte{}, sc...), 0x18, 0xEE)
	payload = append(payload, agg...)

	got := ExtractH264(payload)
	want := append(append([]byte{}, sps...), idr...)
	if !bytes.Equal(got, want) {
		t.Fatalf("ExtractH264 = %x, want %x", got, want)
	}
}

func TestExtractH264PromotesThreeByteStartCode(t *testing.T) {
	sc3 := []byte{0x00, 0x00, 0x01}
	payload := append(append([]byte{}, sc3...), 0x67, 0x01, 0x02)

	got := ExtractH264(payload)
	want := append([]byte{0x00}, payload...)
	if !bytes.Equal(got, want) {
		t.Fatalf("ExtractH264 = %x, want %x", got, want)
	}
}

func TestExtractH264NothingKept(t *testing.T) {
	sc := []byte{0x00, 0x00, 0x00, 0x01}
	// 0xDE & 0x1F = 30, outside 1..13 (0xC7 would mask to 7, an SPS, and be kept).
	payload := append(append([]byte{}, sc...), 0xDE, make([]byte, 21)...)
	got := ExtractH264(payload)
	if len(got) != 0 {
		t.Fatalf("expected empty output, got %x", got)
	}
}

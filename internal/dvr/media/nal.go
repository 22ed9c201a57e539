package media

// startCode4 and startCode3 are the Annex-B NAL unit delimiters.
var startCode4 = []byte{0x00, 0x00, 0x00, 0x01}
var startCode3 = []byte{0x00, 0x00, 0x01}

// keptNALType reports whether a NAL of this type (the low 5 bits of the
// byte following the start code) survives the filter: VCL, SEI, SPS, PPS,
// AUD, end-of-sequence, end-of-stream, filler, SPS extension (1..13).
// Everything else — including RTP aggregation types 24..31 — is
// discarded. Only the low 5 bits are tested, so a vendor prefix byte of
// 0xC6 or 0xC7 masks to 6 or 7 and is kept like an SEI or SPS.
func keptNALType(nalType byte) bool {
	return nalType >= 1 && nalType <= 13
}

// ExtractH264 reshapes one media payload, a bag of NAL units prefixed with
// a vendor header and Annex-B start codes, into a clean Annex-B byte
// sequence containing only the kept NAL types, each preceded by its
// original start code. When only 3-byte start codes are present, the
// first kept NAL's start code is promoted to 4 bytes by prefixing a NUL;
// later ones keep their 3-byte start code.
func ExtractH264(payload []byte) []byte {
	if out := extractWithStartCode(payload, startCode4, false); out != nil {
		return out
	}
	return extractWithStartCode(payload, startCode3, true)
}

// extractWithStartCode scans payload for every occurrence of code, keeps
// NALs whose type passes the filter, and concatenates them in order. When
// promote3to4 is true (the 3-byte start code fallback), the first kept
// NAL's start code is written out as 4 bytes (a leading NUL prefix); later
// ones keep the found 3-byte start code width. Returns nil if no start
// code of this width is found at all, so the caller can fall back to the
// 3-byte search; returns an empty (non-nil) slice if start codes were
// found but nothing passed the filter.
func extractWithStartCode(payload []byte, code []byte, promote3to4 bool) []byte {
	starts := findAll(payload, code)
	if len(starts) == 0 {
		return nil
	}

	out := make([]byte, 0, len(payload))
	first := true
	for i, start := range starts {
		nalStart := start + len(code)
		if nalStart >= len(payload) {
			continue
		}
		end := len(payload)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		nalType := payload[nalStart] & 0x1F
		if !keptNALType(nalType) {
			continue
		}
		if promote3to4 && first {
			out = append(out, 0x00)
		}
		out = append(out, payload[start:end]...)
		first = false
	}
	return out
}

// findAll returns the start offsets of every non-overlapping occurrence
// of code within payload.
func findAll(payload, code []byte) []int {
	var starts []int
	for i := 0; i+len(code) <= len(payload); i++ {
		if matches(payload[i:i+len(code)], code) {
			starts = append(starts, i)
		}
	}
	return starts
}

func matches(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

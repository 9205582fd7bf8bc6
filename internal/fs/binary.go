package fs

import (
	"io"
	"os"
)

// binarySniffLen is how much of a file is inspected for the heuristic.
const binarySniffLen = 8 * 1024

// maxNonTextFraction is the share of non-text bytes above which a file is
// treated as binary.
const maxNonTextFraction = 0.30

// IsBinary reports whether the file at absPath looks binary: a NUL byte
// in the first 8 KiB, or more than 30% of those bytes outside the text
// set. Unreadable files count as binary so they drop out of text-only
// scans.
func IsBinary(absPath string) bool {
	f, err := os.Open(absPath)
	if err != nil {
		return true
	}
	defer f.Close()

	buf := make([]byte, binarySniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return true
	}
	return looksBinary(buf[:n])
}

func looksBinary(data []byte) bool {
	if len(data) == 0 {
		return false
	}

	nonText := 0
	for _, b := range data {
		if b == 0 {
			return true
		}
		if !isTextByte(b) {
			nonText++
		}
	}
	return float64(nonText)/float64(len(data)) > maxNonTextFraction
}

// isTextByte reports membership in the text set: common control
// characters plus all of 0x20–0xFF except DEL.
func isTextByte(b byte) bool {
	switch b {
	case '\t', '\n', '\r', '\f', '\b', 0x07 /* bell */, 0x1b /* escape */ :
		return true
	}
	return b >= 0x20 && b != 0x7f
}

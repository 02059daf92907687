// Package tileformat classifies a raw tile payload by its byte signature
// and maps the result to HTTP content-type/content-encoding headers. The
// archive backend stores raw MVT and may also serve pre-compressed MVT,
// so the classifier lets the HTTP layer pick the right headers without
// the backend itself knowing about transport concerns.
package tileformat

import "bytes"

// DataFormat is a closed tagged variant describing a tile payload's
// encoding. The zero value is Unknown.
type DataFormat int

const (
	Unknown DataFormat = iota
	Png
	Jpeg
	Webp
	Gif
	Json
	Mvt
	MvtGzip
	MvtZlib
)

func (f DataFormat) String() string {
	switch f {
	case Png:
		return "png"
	case Jpeg:
		return "jpeg"
	case Webp:
		return "webp"
	case Gif:
		return "gif"
	case Json:
		return "json"
	case Mvt:
		return "mvt"
	case MvtGzip:
		return "mvt-gzip"
	case MvtZlib:
		return "mvt-zlib"
	default:
		return "unknown"
	}
}

// ContentType returns the MIME type for f, or "" for Unknown. The
// compressed MVT variants share plain Mvt's "application/x-protobuf".
func (f DataFormat) ContentType() string {
	switch f {
	case Png:
		return "image/png"
	case Jpeg:
		return "image/jpeg"
	case Webp:
		return "image/webp"
	case Gif:
		return "image/gif"
	case Json:
		return "application/json"
	case Mvt, MvtGzip, MvtZlib:
		return "application/x-protobuf"
	default:
		return ""
	}
}

// ContentEncoding returns the transport encoding implied by f, or "" when
// the payload is not itself compressed.
func (f DataFormat) ContentEncoding() string {
	switch f {
	case MvtGzip:
		return "gzip"
	case MvtZlib:
		return "deflate"
	default:
		return ""
	}
}

var (
	sigGzip = []byte{0x1F, 0x8B}
	sigZlib = []byte{0x78, 0x9C}
	sigPng  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	sigGif  = []byte("GIF89a")
	sigJpeg = []byte{0xFF, 0xD8, 0xFF}
	sigRiff = []byte("RIFF")
	sigWebp = []byte("WEBP")
)

// Classify returns the DataFormat of b by fixed-order prefix matching.
// It is total and pure: every byte slice, including the empty slice,
// produces some DataFormat, and it never panics.
func Classify(b []byte) DataFormat {
	switch {
	case hasPrefix(b, sigGzip):
		return MvtGzip
	case hasPrefix(b, sigZlib):
		return MvtZlib
	case hasPrefix(b, sigPng):
		return Png
	case hasPrefix(b, sigGif):
		return Gif
	case hasPrefix(b, sigJpeg):
		return Jpeg
	case hasPrefix(b, sigRiff) && len(b) >= 12 && bytes.Equal(b[8:12], sigWebp):
		return Webp
	case len(b) > 0 && b[0] == '{':
		return Json
	default:
		return Unknown
	}
}

func hasPrefix(b, sig []byte) bool {
	return len(b) >= len(sig) && bytes.Equal(b[:len(sig)], sig)
}

// Package compress adapts github.com/klauspost/compress's gzip, flate, and
// zstd codecs to the CompressionAdapter contract: an Encoder the body
// writer drives, and a Decoder the body reader drives.
package compress

import (
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/corehttp/rawcore/protocol"
	"github.com/corehttp/rawcore/rhttperr"
)

// Encoder writes compressed bytes into an underlying writer, which the
// message lifecycle always wires to its chunked body framer.
type Encoder interface {
	io.Writer
	Flush() error
	Close() error
}

// Decoder reads decompressed bytes from an underlying reader, which the
// message lifecycle always wires to its framing body reader.
type Decoder interface {
	io.ReadCloser
}

type identityEncoder struct{ io.Writer }

func (identityEncoder) Flush() error { return nil }
func (identityEncoder) Close() error { return nil }

type identityDecoder struct{ io.Reader }

func (identityDecoder) Close() error { return nil }

type deflateEncoder struct{ w *flate.Writer }

func (e deflateEncoder) Write(p []byte) (int, error) { return e.w.Write(p) }
func (e deflateEncoder) Flush() error                { return e.w.Flush() }
func (e deflateEncoder) Close() error                { return e.w.Close() }

// NewEncoder returns the write-side compressor for coding. Only identity
// and deflate are valid write-side codings; gzip and zstd are read-side
// only, matching the response-decoding set a real server may send but this
// client never produces on request.
func NewEncoder(coding protocol.ContentCoding, w io.Writer) (Encoder, error) {
	switch coding {
	case protocol.CodingIdentity:
		return identityEncoder{w}, nil
	case protocol.CodingDeflate:
		fw, err := flate.NewWriter(w, flate.DefaultCompression)
		if err != nil {
			return nil, rhttperr.NewDecompressionInitFailed(coding.String(), err)
		}
		return deflateEncoder{fw}, nil
	default:
		return nil, rhttperr.NewDecompressionInitFailed(coding.String(), nil)
	}
}

// NewDecoder returns the read-side decompressor for coding.
func NewDecoder(coding protocol.ContentCoding, r io.Reader) (Decoder, error) {
	switch coding {
	case protocol.CodingIdentity:
		return identityDecoder{r}, nil
	case protocol.CodingDeflate:
		return flate.NewReader(r), nil
	case protocol.CodingGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, rhttperr.NewDecompressionInitFailed(coding.String(), err)
		}
		return gr, nil
	case protocol.CodingZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, rhttperr.NewDecompressionInitFailed(coding.String(), err)
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, rhttperr.NewDecompressionInitFailed(coding.String(), nil)
	}
}

package cachegate

import (
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/golang/snappy"
)

// Codec identifies a body content-coding the streaming pump boundary
// negotiates between a stored variant's Content-Encoding and a client's
// Accept-Encoding. Per SPEC_FULL.md's Non-goal boundary, this module only
// selects/labels the codec here; actual re-encoding happens in the
// downstream stream node NextNode represents.
type Codec int

const (
	CodecIdentity Codec = iota
	CodecGzip
	CodecBrotli
	CodecSnappy
)

func (c Codec) String() string {
	switch c {
	case CodecGzip:
		return "gzip"
	case CodecBrotli:
		return "br"
	case CodecSnappy:
		return "snappy"
	default:
		return "identity"
	}
}

// NegotiateCodec picks the content-coding to advertise for a delivery,
// preferring the stored variant's own coding when the client accepts it,
// falling back to identity otherwise.
func NegotiateCodec(storedEncoding, acceptEncoding string) Codec {
	stored := parseCodec(storedEncoding)
	if stored == CodecIdentity {
		return CodecIdentity
	}
	if clientAccepts(acceptEncoding, stored) {
		return stored
	}
	return CodecIdentity
}

func parseCodec(encoding string) Codec {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip":
		return CodecGzip
	case "br":
		return CodecBrotli
	case "snappy", "x-snappy":
		return CodecSnappy
	default:
		return CodecIdentity
	}
}

func clientAccepts(acceptEncoding string, codec Codec) bool {
	if acceptEncoding == "" {
		return codec == CodecIdentity
	}
	target := codec.String()
	for _, tok := range strings.Split(acceptEncoding, ",") {
		tok = strings.TrimSpace(strings.SplitN(tok, ";", 2)[0])
		if tok == "*" || strings.EqualFold(tok, target) {
			return true
		}
	}
	return codec == CodecIdentity
}

// NewDecoder returns a reader that decodes body bytes encoded with codec,
// for a downstream stream node that needs to re-encode or inspect a
// stored variant's decompressed body.
func NewDecoder(codec Codec, r io.Reader) (io.Reader, error) {
	switch codec {
	case CodecGzip:
		return gzip.NewReader(r)
	case CodecBrotli:
		return brotli.NewReader(r), nil
	case CodecSnappy:
		return snappy.NewReader(r), nil
	case CodecIdentity:
		return r, nil
	default:
		return nil, fmt.Errorf("bodycodec: unknown codec %v", codec)
	}
}

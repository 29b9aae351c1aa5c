// Package archive turns a fetched feed artifact into XML text. The container
// is detected from the leading bytes because published file names do not
// reliably describe the compression actually used.
package archive

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/op/go-logging"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var log = logging.MustGetLogger("archive")

var (
	ErrUnsupportedFormat = errors.New("unsupported feed format")
	ErrNoTextMemberFound = errors.New("no text member found in zip archive")
)

type Format string

const (
	FormatZip  Format = "zip"
	FormatGzip Format = "gzip"
	FormatText Format = "text"
)

// textExtensions are the zip member suffixes treated as feed documents.
var textExtensions = []string{".xml"}

var xmlEncodingDecl = regexp.MustCompile(`^\s*<\?xml[^>]*encoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)

// Sniff reports the container format from the first two bytes.
func Sniff(data []byte) Format {
	switch {
	case len(data) >= 2 && data[0] == 'P' && data[1] == 'K':
		return FormatZip
	case len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b:
		return FormatGzip
	default:
		return FormatText
	}
}

// Read returns the XML text carried by data.
func Read(data []byte) (string, error) {
	var (
		raw []byte
		err error
	)
	format := Sniff(data)
	switch format {
	case FormatZip:
		raw, err = readZip(data)
	case FormatGzip:
		raw, err = readGzip(data)
	default:
		raw = data
	}
	if err != nil {
		return "", err
	}

	text, err := toUTF8(raw)
	if err != nil {
		return "", fmt.Errorf("%s payload: %w", format, err)
	}
	log.Debugf("read %s payload: %d bytes -> %d characters", format, len(data), utf8.RuneCountInString(text))
	return text, nil
}

func readZip(data []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt zip: %v", ErrUnsupportedFormat, err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !hasTextExtension(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open zip member %s: %w", f.Name, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read zip member %s: %w", f.Name, err)
		}
		return b, nil
	}
	return nil, ErrNoTextMemberFound
}

func readGzip(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt gzip: %v", ErrUnsupportedFormat, err)
	}
	defer gr.Close()
	b, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("%w: truncated gzip stream: %v", ErrUnsupportedFormat, err)
	}
	return b, nil
}

func hasTextExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range textExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// toUTF8 returns b as a string when it already is UTF-8. Otherwise it tries a
// UTF-16 byte order mark, then the encoding named in the XML declaration.
func toUTF8(b []byte) (string, error) {
	if utf8.Valid(b) {
		return string(b), nil
	}

	if hasUTF16BOM(b) {
		return decode(unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), b)
	}

	if m := xmlEncodingDecl.FindSubmatch(b); m != nil {
		label := string(m[1])
		enc, err := htmlindex.Get(label)
		if err != nil {
			return "", fmt.Errorf("%w: unknown declared encoding %q", ErrUnsupportedFormat, label)
		}
		if name, _ := htmlindex.Name(enc); name != "utf-8" {
			log.Debugf("transcoding %s document to UTF-8", label)
			return decode(enc, b)
		}
	}

	return "", fmt.Errorf("%w: content is not UTF-8 text", ErrUnsupportedFormat)
}

func hasUTF16BOM(b []byte) bool {
	return len(b) >= 2 && ((b[0] == 0xff && b[1] == 0xfe) || (b[0] == 0xfe && b[1] == 0xff))
}

func decode(enc encoding.Encoding, b []byte) (string, error) {
	out, _, err := transform.Bytes(enc.NewDecoder(), b)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if !utf8.Valid(out) {
		return "", fmt.Errorf("%w: content is not decodable text", ErrUnsupportedFormat)
	}
	return string(out), nil
}

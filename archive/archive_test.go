package archive

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const sampleXML = `<?xml version="1.0" encoding="utf-8"?>
<root><ChainId>7290058108879</ChainId><StoreId>337</StoreId><Items Count="1"><Item><ItemCode>1</ItemCode><ItemNm>חלב 3%</ItemNm></Item></Items></root>`

type member struct {
	name string
	body string
}

func zipWrap(t *testing.T, members ...member) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		w, err := zw.Create(m.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(m.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func gzipWrap(t *testing.T, body []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write(body)
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func TestReadRoundTrip(t *testing.T) {
	texts := []string{sampleXML, "", "plain text", "<a>ü€</a>"}
	for _, text := range texts {
		fromZip, err := Read(zipWrap(t, member{"feed.xml", text}))
		require.NoError(t, err)
		assert.Equal(t, text, fromZip)

		fromGzip, err := Read(gzipWrap(t, []byte(text)))
		require.NoError(t, err)
		assert.Equal(t, text, fromGzip)

		fromRaw, err := Read([]byte(text))
		require.NoError(t, err)
		assert.Equal(t, text, fromRaw)
	}
}

func TestSniff(t *testing.T) {
	assert.Equal(t, FormatZip, Sniff(zipWrap(t, member{"a.xml", "x"})))
	assert.Equal(t, FormatGzip, Sniff(gzipWrap(t, []byte("x"))))
	assert.Equal(t, FormatText, Sniff([]byte("<root/>")))
	assert.Equal(t, FormatText, Sniff(nil))
}

func TestReadZipTakesFirstXMLMember(t *testing.T) {
	data := zipWrap(t,
		member{"readme.txt", "not this one"},
		member{"PriceFull-337.XML", "<first/>"},
		member{"second.xml", "<second/>"},
	)

	text, err := Read(data)

	require.NoError(t, err)
	assert.Equal(t, "<first/>", text)
}

func TestReadZipWithoutTextMember(t *testing.T) {
	data := zipWrap(t, member{"image.png", "\x89PNG"})

	_, err := Read(data)

	assert.ErrorIs(t, err, ErrNoTextMemberFound)
}

func TestReadRejectsBinaryPayload(t *testing.T) {
	_, err := Read([]byte{0x00, 0xff, 0xfe, 0xfd, 0x80, 0x81})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Read(gzipWrap(t, []byte{0xc3, 0x28, 0xa0, 0xa1}))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestReadCorruptContainers(t *testing.T) {
	_, err := Read([]byte("PK\x03\x04garbage"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Read([]byte{0x1f, 0x8b, 0x08})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestReadTranscodesDeclaredLegacyEncoding(t *testing.T) {
	doc := `<?xml version="1.0" encoding="windows-1255"?><root><ItemNm>שמן זית</ItemNm></root>`
	encoded, _, err := transform.Bytes(charmap.Windows1255.NewEncoder(), []byte(doc))
	require.NoError(t, err)

	text, err := Read(gzipWrap(t, encoded))

	require.NoError(t, err)
	assert.Equal(t, doc, text)
}

func TestReadDecodesUTF16WithBOM(t *testing.T) {
	doc := `<root><ItemNm>לחם</ItemNm></root>`
	encoded, _, err := transform.Bytes(unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder(), []byte(doc))
	require.NoError(t, err)

	text, err := Read(encoded)

	require.NoError(t, err)
	assert.Equal(t, doc, text)
}

func TestReadRejectsInvalidDeclaredUTF8(t *testing.T) {
	doc := append([]byte(`<?xml version="1.0" encoding="UTF-8"?><root>`), 0xff, 0xfe, 0x41)

	_, err := Read(doc)

	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

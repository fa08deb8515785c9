package writers

import (
	"archive/zip"
	"io"
	"os"

	kflate "github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	xz "github.com/smira/go-xz"
)

func newArchiveFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
}

// Zip does not reserve method ids for zstd/lzma; these follow the
// informal ids other tools (7-Zip, Info-ZIP) have settled on.
const (
	zipMethodZstd uint16 = 93
	zipMethodLzma uint16 = 14
)

func init() {
	// Swap the stdlib's Deflate implementation for klauspost/compress's,
	// which is faster and a drop-in io.WriteCloser/io.ReadCloser.
	zip.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return kflate.NewWriter(w, kflate.DefaultCompression)
	})
	zip.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return kflate.NewReader(r)
	})

	zip.RegisterCompressor(zipMethodZstd, func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w)
	})
	zip.RegisterDecompressor(zipMethodZstd, func(r io.Reader) io.ReadCloser {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return io.NopCloser(errReader{err})
		}
		return dec.IOReadCloser()
	})

	zip.RegisterCompressor(zipMethodLzma, func(w io.Writer) (io.WriteCloser, error) {
		return xz.NewWriter(w)
	})
	zip.RegisterDecompressor(zipMethodLzma, func(r io.Reader) io.ReadCloser {
		rc, err := xz.NewReader(r)
		if err != nil {
			return io.NopCloser(errReader{err})
		}
		return rc
	})
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

func zipMethod(m CompressionMethod) uint16 {
	switch m {
	case Deflate:
		return zip.Deflate
	case Zstd:
		return zipMethodZstd
	case Lzma:
		return zipMethodLzma
	default:
		return zip.Store
	}
}

// archiveEntry writes data as the single entry named entryName inside
// a ZIP container at dstPath, compressed per method, with the entry's
// external attributes set so an extraction restores 0o755 permission.
func archiveEntry(dstPath, entryName string, method CompressionMethod, data []byte) error {
	f, err := newArchiveFile(dstPath)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	hdr := &zip.FileHeader{
		Name:   entryName,
		Method: zipMethod(method),
	}
	hdr.SetMode(0o755)
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		zw.Close()
		return err
	}
	if _, err := w.Write(data); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

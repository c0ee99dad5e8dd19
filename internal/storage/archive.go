package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/coffersTech/logalytics/internal/model"
)

// Archive file header.
var MagicHeader = []byte("LOGALYT1")

var ErrInvalidHeader = errors.New("invalid archive file header")

// ArchiveWriter writes purged records into zstd-compressed archive files.
// Payload layout after the magic header: a single zstd frame containing
// [Len uint32 LE][JSON record] units.
type ArchiveWriter struct {
	dir     string
	encoder *zstd.Encoder
}

// NewArchiveWriter creates the archive directory if needed.
func NewArchiveWriter(dir string) (*ArchiveWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	return &ArchiveWriter{dir: dir, encoder: enc}, nil
}

// Archive writes the records to a new archive file named by their
// timestamp span: archive_{minTs}_{maxTs}.zst. Records are expected in
// ascending timestamp order, as delivered by a purge. Usable as an
// engine.ArchiveFunc.
func (aw *ArchiveWriter) Archive(records []model.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	buf := new(bytes.Buffer)
	lenBuf := make([]byte, 4)
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding archived record %d: %w", rec.ID, err)
		}
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(data)))
		buf.Write(lenBuf)
		buf.Write(data)
	}

	minTs := records[0].Timestamp.UnixNano()
	maxTs := records[len(records)-1].Timestamp.UnixNano()
	name := fmt.Sprintf("archive_%d_%d.zst", minTs, maxTs)
	path := filepath.Join(aw.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(MagicHeader); err != nil {
		return err
	}
	compressed := aw.encoder.EncodeAll(buf.Bytes(), nil)
	if _, err := f.Write(compressed); err != nil {
		return err
	}
	return f.Sync()
}

// ArchiveReader reads records back out of archive files.
type ArchiveReader struct {
	decoder *zstd.Decoder
}

func NewArchiveReader() (*ArchiveReader, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &ArchiveReader{decoder: dec}, nil
}

// ReadArchive returns every record stored in the file.
func (ar *ArchiveReader) ReadArchive(path string) ([]model.LogRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) < len(MagicHeader) || !bytes.Equal(raw[:len(MagicHeader)], MagicHeader) {
		return nil, ErrInvalidHeader
	}

	payload, err := ar.decoder.DecodeAll(raw[len(MagicHeader):], nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing archive %s: %w", path, err)
	}

	var records []model.LogRecord
	r := bytes.NewReader(payload)
	lenBuf := make([]byte, 4)
	for {
		if _, err := io.ReadFull(r, lenBuf); err == io.EOF {
			break
		} else if err != nil {
			return records, fmt.Errorf("archive frame length: %w", err)
		}
		data := make([]byte, binary.LittleEndian.Uint32(lenBuf))
		if _, err := io.ReadFull(r, data); err != nil {
			return records, fmt.Errorf("archive frame body: %w", err)
		}
		var rec model.LogRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return records, fmt.Errorf("archive frame decode: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// ListArchives returns the archive files under dir whose timestamp span
// overlaps [start, end). Zero times mean unbounded.
func ListArchives(dir string, start, end time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		minTs, maxTs, err := parseArchiveName(entry.Name())
		if err != nil {
			continue
		}
		if !start.IsZero() && maxTs < start.UnixNano() {
			continue
		}
		if !end.IsZero() && minTs >= end.UnixNano() {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

func parseArchiveName(name string) (int64, int64, error) {
	var minTs, maxTs int64
	if _, err := fmt.Sscanf(name, "archive_%d_%d.zst", &minTs, &maxTs); err != nil {
		return 0, 0, fmt.Errorf("not an archive file: %s", name)
	}
	return minTs, maxTs, nil
}

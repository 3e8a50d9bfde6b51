package persistence

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/samber/oops"

	"github.com/talgya/offscreen/internal/engine"
)

// SnapshotVersion is bumped whenever the encoded layout changes.
const SnapshotVersion = 1

// Header leads every snapshot file as a single JSON line so tools can
// identify a save without decoding the body.
type Header struct {
	Version int     `json:"version"`
	SaveID  string  `json:"save_id"`
	Clock   float64 `json:"clock"`
	Seed    int64   `json:"seed"`
	Actors  int     `json:"actors"`
}

// Encode compresses a state as zstd-framed JSON.
func Encode(st engine.State) ([]byte, error) {
	raw, err := json.Marshal(st)
	if err != nil {
		return nil, oops.Code(CodeCorrupt).Wrapf(err, "encode state")
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, oops.Code(CodeStorage).Wrapf(err, "zstd writer")
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil), nil
}

// Decode reverses Encode.
func Decode(data []byte) (engine.State, error) {
	var st engine.State
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return st, oops.Code(CodeStorage).Wrapf(err, "zstd reader")
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return st, oops.Code(CodeCorrupt).Wrapf(err, "decompress state")
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return st, oops.Code(CodeCorrupt).Wrapf(err, "decode state")
	}
	return st, nil
}

// WriteFile writes a header line and the state to a zstd-compressed file.
func WriteFile(path string, h Header, st engine.State) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return oops.Code(CodeStorage).With("path", path).Wrapf(err, "create snapshot dir")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return oops.Code(CodeStorage).With("path", path).Wrapf(err, "open snapshot")
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = oops.Code(CodeStorage).With("path", path).Wrapf(cerr, "close snapshot")
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return oops.Code(CodeStorage).Wrapf(err, "zstd writer")
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	h.Version = SnapshotVersion
	hb, _ := json.Marshal(h)
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		enc.Close()
		return oops.Code(CodeStorage).Wrapf(err, "write header")
	}
	if err := json.NewEncoder(bw).Encode(st); err != nil {
		enc.Close()
		return oops.Code(CodeStorage).Wrapf(err, "write state")
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return oops.Code(CodeStorage).Wrapf(err, "flush snapshot")
	}
	if err := enc.Close(); err != nil {
		return oops.Code(CodeStorage).Wrapf(err, "finish snapshot")
	}
	return nil
}

// ReadFile loads a snapshot written by WriteFile.
func ReadFile(path string) (Header, engine.State, error) {
	var (
		h  Header
		st engine.State
	)
	f, err := os.Open(path)
	if err != nil {
		return h, st, oops.Code(CodeNoState).With("path", path).Wrapf(err, "open snapshot")
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, st, oops.Code(CodeCorrupt).With("path", path).Wrapf(err, "zstd reader")
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, st, oops.Code(CodeCorrupt).With("path", path).Wrapf(err, "read header")
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, st, oops.Code(CodeCorrupt).With("path", path).Wrapf(err, "decode header")
	}
	if h.Version != SnapshotVersion {
		return h, st, oops.Code(CodeCorrupt).With("path", path).With("version", h.Version).
			Errorf("unsupported snapshot version %d", h.Version)
	}
	if err := json.NewDecoder(br).Decode(&st); err != nil {
		return h, st, oops.Code(CodeCorrupt).With("path", path).Wrapf(err, "decode state")
	}
	return h, st, nil
}

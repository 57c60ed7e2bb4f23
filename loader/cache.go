package loader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/xxh3"

	"github.com/Open-Argon/Chloride-sub000/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Bytecode cache file
// ---------------------------------------------------------------------------

// CacheVersion is the format version written into every cache file.
const CacheVersion uint32 = 1

const (
	cacheMagic = "ARBI"

	// magic, version, source hash, register count, constants length,
	// bytecode length
	cacheHeaderLen = 4 + 4 + 8 + 1 + 8 + 8
	checksumLen    = 8

	cacheExt   = ".arbin"
	sidecarExt = ".arloc"
)

var (
	errShort       = errors.New("file too short")
	errMagic       = errors.New("bad magic")
	errChecksum    = errors.New("checksum mismatch")
	errVersion     = errors.New("version mismatch")
	errSourceHash  = errors.New("source hash mismatch")
	errPayloadSize = errors.New("payload length mismatch")
)

// EncodeCache serializes the register count, constants and bytecode of
// unit, tagged with the hash of the source it was compiled from.
func EncodeCache(unit *bytecode.Translated, sourceHash uint64) []byte {
	consts := unit.Constants.Bytes()
	buf := make([]byte, 0, cacheHeaderLen+len(consts)+len(unit.Bytecode)+checksumLen)
	buf = append(buf, cacheMagic...)
	buf = binary.LittleEndian.AppendUint32(buf, CacheVersion)
	buf = binary.LittleEndian.AppendUint64(buf, sourceHash)
	buf = append(buf, unit.RegisterCount)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(consts)))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(unit.Bytecode)))
	buf = append(buf, consts...)
	buf = append(buf, unit.Bytecode...)
	return appendChecksum(buf)
}

// appendChecksum appends the XXH3 hash of everything in buf.
func appendChecksum(buf []byte) []byte {
	return binary.LittleEndian.AppendUint64(buf, xxh3.Hash(buf))
}

// DecodeCache validates a cache file against sourceHash and rebuilds the
// unit it holds. The returned unit has an empty location table.
func DecodeCache(path string, data []byte, sourceHash uint64) (*bytecode.Translated, error) {
	if len(data) < cacheHeaderLen+checksumLen {
		return nil, errShort
	}
	if string(data[:4]) != cacheMagic {
		return nil, errMagic
	}
	body := data[:len(data)-checksumLen]
	if xxh3.Hash(body) != binary.LittleEndian.Uint64(data[len(body):]) {
		return nil, errChecksum
	}
	if binary.LittleEndian.Uint32(data[4:]) != CacheVersion {
		return nil, errVersion
	}
	if binary.LittleEndian.Uint64(data[8:]) != sourceHash {
		return nil, errSourceHash
	}
	regs := data[16]
	constLen := binary.LittleEndian.Uint64(data[17:])
	codeLen := binary.LittleEndian.Uint64(data[25:])
	payload := body[cacheHeaderLen:]
	if constLen > uint64(len(payload)) || codeLen != uint64(len(payload))-constLen {
		return nil, errPayloadSize
	}

	consts := append([]byte(nil), payload[:constLen]...)
	code := append([]byte(nil), payload[constLen:]...)
	return &bytecode.Translated{
		Path:          path,
		RegisterCount: regs,
		Bytecode:      code,
		Constants:     bytecode.NewArenaFromBytes(consts),
		Locations:     bytecode.NewLocationTable(),
	}, nil
}

// ---------------------------------------------------------------------------
// Source-location sidecar
// ---------------------------------------------------------------------------

// locationRecord is one location table entry on disk.
type locationRecord struct {
	_      struct{} `cbor:",toarray"`
	Line   uint64
	Column uint64
	Length uint64
}

// sidecar is the CBOR document stored next to a cache file so cached
// units still report source positions.
type sidecar struct {
	SourceHash uint64           `cbor:"1,keyasint"`
	Locations  []locationRecord `cbor:"2,keyasint"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("loader: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// EncodeLocations serializes a location table for the sidecar file.
func EncodeLocations(lt *bytecode.LocationTable, sourceHash uint64) ([]byte, error) {
	entries := lt.Entries()
	sc := sidecar{SourceHash: sourceHash, Locations: make([]locationRecord, len(entries))}
	for i, e := range entries {
		sc.Locations[i] = locationRecord{Line: e.Line, Column: e.Column, Length: e.Length}
	}
	return cborEncMode.Marshal(&sc)
}

// DecodeLocations parses a sidecar file and checks it belongs to the
// source with sourceHash.
func DecodeLocations(data []byte, sourceHash uint64) (*bytecode.LocationTable, error) {
	var sc sidecar
	if err := cbor.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("loader: unmarshal locations: %w", err)
	}
	if sc.SourceHash != sourceHash {
		return nil, errSourceHash
	}
	entries := make([]bytecode.Location, len(sc.Locations))
	for i, r := range sc.Locations {
		entries[i] = bytecode.Location{Line: r.Line, Column: r.Column, Length: r.Length}
	}
	return bytecode.NewLocationTable(entries...), nil
}

// ---------------------------------------------------------------------------
// Cache paths and I/O
// ---------------------------------------------------------------------------

// cachePaths returns the bytecode and sidecar paths for a source file:
// <dir>/<cacheDir>/<base without extension>.arbin and .arloc.
func cachePaths(source, cacheDir string) (string, string) {
	dir, base := filepath.Split(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	root := filepath.Join(dir, cacheDir, stem)
	return root + cacheExt, root + sidecarExt
}

// writeAtomic writes data to a temporary file in the target directory
// and renames it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

package loader

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Open-Argon/Chloride-sub000/compiler"
	"github.com/Open-Argon/Chloride-sub000/pkg/bytecode"
)

const sample = `let greet(name) = "hi " + name
let xs = [1, 2, 3]
for (x in xs) do
  if (x == 2) break
end
class Box do
  let v = 1
end`

func compileSample(t *testing.T) (*bytecode.Translated, uint64) {
	t.Helper()
	unit, err := compiler.Compile("sample.ar", []byte(sample))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return unit, bytecode.HashSource([]byte(sample))
}

func TestCacheRoundTrip(t *testing.T) {
	unit, hash := compileSample(t)
	data := EncodeCache(unit, hash)

	got, err := DecodeCache("sample.ar", data, hash)
	if err != nil {
		t.Fatalf("DecodeCache: %v", err)
	}
	if got.RegisterCount != unit.RegisterCount {
		t.Errorf("RegisterCount = %d, want %d", got.RegisterCount, unit.RegisterCount)
	}
	if !bytes.Equal(got.Bytecode, unit.Bytecode) {
		t.Errorf("bytecode differs after round trip")
	}
	if !bytes.Equal(got.Constants.Bytes(), unit.Constants.Bytes()) {
		t.Errorf("constants differ after round trip")
	}
	if !bytes.Equal(EncodeCache(got, hash), data) {
		t.Errorf("re-encoding is not byte identical")
	}
}

func TestCacheLayout(t *testing.T) {
	unit, hash := compileSample(t)
	data := EncodeCache(unit, hash)
	consts := unit.Constants.Len()
	want := cacheHeaderLen + consts + len(unit.Bytecode) + checksumLen
	if len(data) != want {
		t.Fatalf("len = %d, want %d", len(data), want)
	}
	if string(data[:4]) != "ARBI" {
		t.Errorf("magic = %q", data[:4])
	}
	if data[16] != unit.RegisterCount {
		t.Errorf("register count byte = %d", data[16])
	}
}

func TestCacheRejects(t *testing.T) {
	unit, hash := compileSample(t)
	good := EncodeCache(unit, hash)

	flip := func(i int) []byte {
		b := append([]byte(nil), good...)
		b[i] ^= 0xFF
		return b
	}
	// Version and source hash are covered by the checksum, so a wrong
	// value in either must be written with a matching checksum to reach
	// its own check.
	wrongVersion := func() []byte {
		b := append([]byte(nil), good[:len(good)-checksumLen]...)
		b[4] = 9
		return appendChecksum(b)
	}

	tests := []struct {
		name string
		data []byte
		hash uint64
		want error
	}{
		{"short", good[:10], hash, errShort},
		{"magic", flip(0), hash, errMagic},
		{"payload byte", flip(cacheHeaderLen + 1), hash, errChecksum},
		{"checksum", flip(len(good) - 1), hash, errChecksum},
		{"version", wrongVersion(), hash, errVersion},
		{"source hash", good, hash + 1, errSourceHash},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeCache("sample.ar", tt.data, tt.hash); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLocationsRoundTrip(t *testing.T) {
	unit, hash := compileSample(t)
	data, err := EncodeLocations(unit.Locations, hash)
	if err != nil {
		t.Fatal(err)
	}
	lt, err := DecodeLocations(data, hash)
	if err != nil {
		t.Fatal(err)
	}
	want := unit.Locations.Entries()
	got := lt.Entries()
	if len(got) != len(want) {
		t.Fatalf("%d locations, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("location %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if _, err := DecodeLocations(data, hash+1); !errors.Is(err, errSourceHash) {
		t.Errorf("stale sidecar accepted: %v", err)
	}
}

func TestCachePaths(t *testing.T) {
	bin, loc := cachePaths("/src/pkg/main.ar", "__arcache__")
	if bin != "/src/pkg/__arcache__/main.arbin" || loc != "/src/pkg/__arcache__/main.arloc" {
		t.Errorf("cachePaths = %s, %s", bin, loc)
	}
}

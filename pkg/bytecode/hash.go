package bytecode

import "github.com/zeebo/xxh3"

// TranslatorSeed keys identifier hashing. The translator embeds hashes
// computed with this seed into the bytecode, and the runtime hashes
// dynamically built names the same way, so both sides agree without
// re-hashing constant bytes at every lookup.
const TranslatorSeed uint64 = 0x6172676f6e2d6964

// HashName returns the lookup hash of an identifier or field name.
func HashName(name string) uint64 {
	return xxh3.HashStringSeed(name, TranslatorSeed)
}

// HashSource returns the content hash of a source file.
func HashSource(src []byte) uint64 {
	return xxh3.Hash(src)
}

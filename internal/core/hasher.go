package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"SwapLedger/internal/event"
	"SwapLedger/internal/ledger"
)

// ComputeRangeHash fingerprints a fetched event range. The builder compares
// it across polling ticks to skip rebuilds when nothing changed. Covers
// identity and position of every event, so a reorg that reorders the
// unconfirmed suffix changes the hash.
func ComputeRangeHash(events []*event.OpEvent) string {
	hasher := sha256.New()
	var buf [8]byte
	for _, ev := range events {
		hasher.Write([]byte(ev.Identity()))
		binary.LittleEndian.PutUint64(buf[:], uint64(ev.Height))
		hasher.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(ev.InscriptionNumber))
		hasher.Write(buf[:])
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// ComputeAssetsCheck produces a deterministic digest of the full ledger:
// classes in enumeration order, ticks and holders sorted. Stored inside
// every snapshot and re-verified on restore.
func ComputeAssetsCheck(assets *ledger.Assets) string {
	hasher := sha256.New()
	for _, class := range ledger.AllAssetClasses {
		for _, tick := range assets.Ticks(class) {
			tok := assets.Get(class, tick)
			hasher.Write([]byte(class))
			hasher.Write([]byte{0})
			hasher.Write([]byte(tick))
			hasher.Write([]byte{0})
			hasher.Write([]byte(tok.Supply().String()))
			hasher.Write([]byte{0})
			for _, addr := range tok.Holders() {
				hasher.Write([]byte(addr))
				hasher.Write([]byte{0})
				hasher.Write([]byte(tok.BalanceOf(addr).String()))
				hasher.Write([]byte{0})
			}
		}
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

package domain

import (
	"hash/crc32"
	"strings"
)

// ChecksumString renders the book the way the exchange does before hashing:
// bids best first, then asks best first, every price and size joined by ':'.
func ChecksumString(ob *OrderBook) string {
	var sb strings.Builder

	write := func(levels []PriceLevel) {
		for _, level := range levels {
			if sb.Len() > 0 {
				sb.WriteByte(':')
			}
			sb.WriteString(level.PriceText)
			sb.WriteByte(':')
			sb.WriteString(level.SizeText)
		}
	}

	write(ob.Bids.Levels())
	write(ob.Asks.Levels())

	return sb.String()
}

// Checksum is the IEEE CRC-32 of ChecksumString.
func Checksum(ob *OrderBook) uint32 {
	return crc32.ChecksumIEEE([]byte(ChecksumString(ob)))
}

func VerifyChecksum(ob *OrderBook, reported uint32) bool {
	return Checksum(ob) == reported
}

package dataset

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/Brownie44l1/house-price-api/internal/domain"
)

// Fingerprint is a content hash of records, stable across processes. It
// changes whenever any record or the record order changes.
func Fingerprint(records []domain.HouseRecord) string {
	d := xxhash.New()
	var buf [8]byte
	putFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		d.Write(buf[:])
	}
	for _, r := range records {
		d.WriteString(r.City)
		d.Write([]byte{0})
		putFloat(r.Price)
		putFloat(r.Sqft)
		putFloat(float64(r.Bed))
		putFloat(r.Bath)
	}
	return strconv.FormatUint(d.Sum64(), 16) + "-" + strconv.Itoa(len(records))
}

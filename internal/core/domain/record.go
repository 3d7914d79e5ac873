package domain

import (
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"
)

// reSrcAddr matches the two address families Remote ID observations can
// arrive on: "MAC-" for Wi-Fi and "BDA-" for BLE, followed by six
// colon-separated uppercase hex octets. Validation is deliberately
// case-sensitive: a lowercase variant is rejected rather than normalized,
// so that IsValidSrcAddr(x) only ever agrees with IsValidSrcAddr(upper(x))
// when x was already uppercase.
var reSrcAddr = regexp.MustCompile(`^(MAC|BDA)-([0-9A-F]{2}:){5}[0-9A-F]{2}$`)

// reUniqueID matches the allowed unique-id alphabet after surrounding
// whitespace has been trimmed.
var reUniqueID = regexp.MustCompile(`^[0-9A-Za-z_\- ]*$`)

const maxUniqueIDLength = 20

// AltitudeSentinel is reported for an optional altitude field whose
// underlying message did not carry a usable value.
const AltitudeSentinel = -1000

// RawFields carries the as-dissected values for one Remote ID observation
// before normalization. Every field here corresponds to one parsed from the
// Open Drone ID basic-id/location messages (or their BLE equivalent); the
// dissector that produced them is out of scope for this package.
type RawFields struct {
	SrcAddr  string
	UniqueID string

	// FrameEpochSeconds is the capture-time wall clock (seconds since the
	// Unix epoch) recorded by the sniffer when the frame arrived.
	FrameEpochSeconds int64
	// LocTimestampDeciseconds is the location message's own "seconds since
	// the hour" field, expressed in tenths of a second, as the wire format
	// transmits it.
	LocTimestampDeciseconds int32

	Heading   int
	GndSpeed  float64
	VertSpeed float64

	Lat float64
	Lon float64

	GeoAlt        int
	GeoAltPresent bool

	BaroAltRaw     int32
	BaroAltPresent bool

	HeightRaw     int32
	HeightPresent bool
	HeightType    int

	SpeedAcc   int
	HorzAcc    int
	GeoVertAcc int
	BaroAltAcc int
}

// Record is one normalized Remote ID observation. Every field is immutable
// once constructed by NewRecord; a Record that NewRecord returns without
// error has already satisfied every invariant in spec §3 and is safe to
// hand straight to the CSV writer.
type Record struct {
	SrcAddr   string
	UniqueID  string
	Timestamp time.Time

	Heading   int
	GndSpeed  float64
	VertSpeed float64

	Lat float64
	Lon float64

	GeoAlt     int
	SpeedAcc   int
	HorzAcc    int
	GeoVertAcc int
	BaroAlt    int
	BaroAltAcc int
	Height     int
	HeightType int
}

// NewRecord validates and normalizes raw as a Record, per spec §3's
// invariants. now is the host's current wall clock, used to clamp the
// reconstructed timestamp; callers pass time.Now() in production and a
// fixed instant in tests.
func NewRecord(raw RawFields, now time.Time) (Record, error) {
	srcAddr := strings.ToUpper(raw.SrcAddr)
	if srcAddr != raw.SrcAddr || !reSrcAddr.MatchString(raw.SrcAddr) {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidSrcAddr, raw.SrcAddr)
	}

	uniqueID := strings.TrimSpace(raw.UniqueID)
	if len(uniqueID) > maxUniqueIDLength || !reUniqueID.MatchString(uniqueID) {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidUniqueID, raw.UniqueID)
	}

	if !raw.GeoAltPresent {
		return Record{}, fmt.Errorf("%w: geo_alt", ErrMissingField)
	}

	if raw.GeoVertAcc < 0 || raw.GeoVertAcc > 15 {
		return Record{}, fmt.Errorf("%w: geo_vert_acc=%d", ErrInvalidField, raw.GeoVertAcc)
	}

	speedAcc := coerceAccuracy(raw.SpeedAcc)
	if speedAcc > 4 {
		log.Printf("remoteid: reserved speed accuracy code %d for %s", speedAcc, srcAddr)
	}

	ts := reconstructTimestamp(raw.FrameEpochSeconds, raw.LocTimestampDeciseconds, now)

	heightType := raw.HeightType
	if heightType != 0 && heightType != 1 {
		heightType = 0
	}

	return Record{
		SrcAddr:    srcAddr,
		UniqueID:   uniqueID,
		Timestamp:  ts,
		Heading:    raw.Heading,
		GndSpeed:   raw.GndSpeed,
		VertSpeed:  raw.VertSpeed,
		Lat:        raw.Lat,
		Lon:        raw.Lon,
		GeoAlt:     raw.GeoAlt,
		SpeedAcc:   speedAcc,
		HorzAcc:    coerceAccuracy(raw.HorzAcc),
		GeoVertAcc: raw.GeoVertAcc,
		BaroAlt:    decodeAltitude(raw.BaroAltRaw, raw.BaroAltPresent),
		BaroAltAcc: coerceAccuracy(raw.BaroAltAcc),
		Height:     decodeAltitude(raw.HeightRaw, raw.HeightPresent),
		HeightType: heightType,
	}, nil
}

// coerceAccuracy maps an out-of-range accuracy code to 0 ("unknown") rather
// than rejecting the record.
func coerceAccuracy(v int) int {
	if v < 0 || v > 15 {
		return 0
	}
	return v
}

// decodeAltitudeInvalidRaw is the wire value meaning "no usable altitude",
// reproduced from the original implementation; whether it matches every
// ASTM F3411-22a compliant transmitter's encoding is uncertain (spec §9).
const decodeAltitudeInvalidRaw = 31768

func decodeAltitude(raw int32, present bool) int {
	if !present || raw == decodeAltitudeInvalidRaw {
		return AltitudeSentinel
	}
	return int((raw + 1000) / 2)
}

func reconstructTimestamp(frameEpochSeconds int64, locDeciseconds int32, now time.Time) time.Time {
	hourAligned := (frameEpochSeconds / 3600) * 3600
	seconds := hourAligned + int64(locDeciseconds/10)
	tenths := locDeciseconds % 10
	if tenths < 0 {
		tenths = 0
	}

	ts := time.Unix(seconds, 0).UTC().Add(time.Duration(tenths) * 100 * time.Millisecond)
	if ts.After(now) {
		return now.UTC()
	}
	return ts
}

// TimestampString renders Timestamp in the CSV wire format of spec §6:
// "YYYY-MM-DD HH:MM:SS.d" where d is the tenths-of-a-second residue.
func (r Record) TimestampString() string {
	tenths := r.Timestamp.Nanosecond() / 100_000_000
	return fmt.Sprintf("%s.%d", r.Timestamp.Format("2006-01-02 15:04:05"), tenths)
}

// IsValidSrcAddr reports whether addr is a syntactically valid source
// address. It is case-sensitive: a lowercase hex octet never matches.
func IsValidSrcAddr(addr string) bool {
	return reSrcAddr.MatchString(addr)
}

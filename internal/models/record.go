package models

// TimestreamField selects which timestream map of a scan record a consumer
// reads from. Records carry the raw detector output and, once calibration has
// run, a calibrated copy; the two are explicit fields rather than dynamic keys
// so a missing stage is visible in the type.
type TimestreamField string

const (
	// FieldRaw selects the uncalibrated detector output.
	FieldRaw TimestreamField = "raw"

	// FieldCalibrated selects the calibrated detector output.
	FieldCalibrated TimestreamField = "calibrated"
)

// ScanRecord is one contiguous batch of synchronized samples: a boresight
// pointing timestream plus per-detector signal timestreams of equal length.
// Records are produced by a source in time order and consumed exactly once.
//
// The timestream maps are optional: a record fresh from a source typically
// carries only Raw, and Calibrated appears after the calibration stage. Both
// may be absent on records that carry no detector data at all (housekeeping
// records); consumers skip those.
type ScanRecord struct {
	// ID is the sequence number of this record within its stream.
	ID int `json:"id"`

	// BoresightRA holds the right-ascension-like boresight angle per sample,
	// in degrees.
	BoresightRA []float64 `json:"boresight_ra"`

	// BoresightDec holds the declination-like boresight angle per sample,
	// in degrees.
	BoresightDec []float64 `json:"boresight_dec"`

	// Raw maps detector identifier to the uncalibrated signal timestream.
	Raw map[string][]float64 `json:"raw,omitempty"`

	// Calibrated maps detector identifier to the calibrated signal timestream.
	Calibrated map[string][]float64 `json:"calibrated,omitempty"`

	// Units is the units tag of the calibrated timestreams, shared across
	// all detectors in a run. Empty until calibration has run.
	Units string `json:"units,omitempty"`
}

// NumSamples returns the length of the boresight timestream.
func (r *ScanRecord) NumSamples() int {
	return len(r.BoresightRA)
}

// Timestreams returns the timestream map selected by field and whether the
// record carries it. A nil or empty map counts as absent.
func (r *ScanRecord) Timestreams(field TimestreamField) (map[string][]float64, bool) {
	var ts map[string][]float64
	switch field {
	case FieldRaw:
		ts = r.Raw
	case FieldCalibrated:
		ts = r.Calibrated
	}
	if len(ts) == 0 {
		return nil, false
	}
	return ts, true
}

// WithCalibrated returns a copy of the record carrying the given calibrated
// timestreams and units tag. The original record is not modified; pipeline
// stages hand each other new records rather than mutating shared ones.
func (r *ScanRecord) WithCalibrated(calibrated map[string][]float64, units string) *ScanRecord {
	out := *r
	out.Calibrated = calibrated
	out.Units = units
	return &out
}

// DetectorOffset is the fixed angular displacement of a detector relative to
// the boresight, in degrees. Offsets are loaded once from calibration data
// and looked up by detector identifier.
type DetectorOffset struct {
	// X is the right-ascension-like offset in degrees, measured on the sky
	// (it is divided by cos(dec) when applied to the boresight RA).
	X float64 `yaml:"x" json:"x"`

	// Y is the declination-like offset in degrees.
	Y float64 `yaml:"y" json:"y"`
}

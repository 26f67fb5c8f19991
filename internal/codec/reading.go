// Package codec converts sensor records between their flat key-value text
// form and SensorReading values.
//
// Only the fixed sensor schema is understood: no nesting, arrays or escaped
// quotes. Lookups are by key, so field order in the input does not matter.
package codec

// Field names of the record schema.
const (
	KeySensorID       = "sensorId"
	KeyTemperature    = "temperature"
	KeyHumidity       = "humidity"
	KeyTimestamp      = "timestamp"
	KeySequenceNumber = "sequenceNumber"
	KeyFilterPassed   = "filterPassed"
	KeyFilterReason   = "filterReason"
)

// SensorReading is one decoded sensor sample. Timestamp is carried through
// verbatim and never parsed.
type SensorReading struct {
	SensorID       string
	Temperature    float64
	Humidity       float64
	Timestamp      string
	SequenceNumber uint64
}

package codec

import (
	"strconv"
)

// Decode extracts a SensorReading from a raw record. Numeric fields take the
// longest numeric prefix after the key and ignore whatever follows it, so
// "12.5garbage" decodes as 12.5.
func Decode(raw []byte) (SensorReading, error) {
	sc := scanner{src: string(raw)}

	sensorID, err := sc.stringField(KeySensorID)
	if err != nil {
		return SensorReading{}, err
	}

	temperature, err := sc.floatField(KeyTemperature)
	if err != nil {
		return SensorReading{}, err
	}

	humidity, err := sc.floatField(KeyHumidity)
	if err != nil {
		return SensorReading{}, err
	}

	timestamp, err := sc.stringField(KeyTimestamp)
	if err != nil {
		return SensorReading{}, err
	}

	sequence, err := sc.uintField(KeySequenceNumber)
	if err != nil {
		return SensorReading{}, err
	}

	return SensorReading{
		SensorID:       sensorID,
		Temperature:    temperature,
		Humidity:       humidity,
		Timestamp:      timestamp,
		SequenceNumber: sequence,
	}, nil
}

// Encode renders r with its filter verdict. filterReason is only written when
// reason is non-empty.
func Encode(r SensorReading, accepted bool, reason string) []byte {
	buf := make([]byte, 0, 192)
	buf = appendReading(buf, r)
	buf = append(buf, `,"`+KeyFilterPassed+`":`...)
	buf = strconv.AppendBool(buf, accepted)
	if reason != "" {
		buf = appendString(buf, KeyFilterReason, reason)
	}

	return append(buf, '}')
}

// EncodeReading renders r as an unannotated input record.
func EncodeReading(r SensorReading) []byte {
	buf := make([]byte, 0, 160)
	buf = appendReading(buf, r)

	return append(buf, '}')
}

func appendReading(buf []byte, r SensorReading) []byte {
	buf = append(buf, `{"`+KeySensorID+`":"`...)
	buf = append(buf, r.SensorID...)
	buf = append(buf, `","`+KeyTemperature+`":`...)
	buf = strconv.AppendFloat(buf, r.Temperature, 'f', 2, 64)
	buf = append(buf, `,"`+KeyHumidity+`":`...)
	buf = strconv.AppendFloat(buf, r.Humidity, 'f', 1, 64)
	buf = appendString(buf, KeyTimestamp, r.Timestamp)
	buf = append(buf, `,"`+KeySequenceNumber+`":`...)

	return strconv.AppendUint(buf, r.SequenceNumber, 10)
}

func appendString(buf []byte, key, value string) []byte {
	buf = append(buf, `,"`...)
	buf = append(buf, key...)
	buf = append(buf, `":"`...)
	buf = append(buf, value...)

	return append(buf, '"')
}

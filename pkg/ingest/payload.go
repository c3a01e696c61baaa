package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// MaxPayloadBytes bounds the request bodies DecodePayload reads
const MaxPayloadBytes = 64 << 10

// Accepted ranges of the public contract
const (
	MinTemperature = -40.0
	MaxTemperature = 80.0
	MinHumidity    = 0.0
	MaxHumidity    = 100.0
	MinClientAQI   = 0.0
	MaxClientAQI   = 500.0
)

// Payload is the body a device or client submits. Numeric fields are kept raw
// so a missing value can be told apart from one that does not parse.
type Payload struct {
	DeviceID         string          `json:"device_id,omitempty"`
	Temperature      json.RawMessage `json:"temperature,omitempty"`
	Humidity         json.RawMessage `json:"humidity,omitempty"`
	GasLevel         json.RawMessage `json:"gas_level,omitempty"`
	DustDensity      json.RawMessage `json:"dust_density,omitempty"`
	AQI              json.RawMessage `json:"aqi,omitempty"`
	AirQualityStatus string          `json:"air_quality_status,omitempty"`
	IPAddress        string          `json:"ip_address,omitempty"`
	FirmwareVersion  string          `json:"firmware_version,omitempty"`
	Timestamp        *time.Time      `json:"timestamp,omitempty"`
}

// NewPayload builds a payload from already typed values
func NewPayload(deviceID string, temperature, humidity, gasLevel, dustDensity float64) *Payload {
	return &Payload{
		DeviceID:    deviceID,
		Temperature: number(temperature),
		Humidity:    number(humidity),
		GasLevel:    number(gasLevel),
		DustDensity: number(dustDensity),
	}
}

func number(v float64) json.RawMessage {
	return json.RawMessage(strconv.FormatFloat(v, 'f', -1, 64))
}

// DecodePayload reads a single JSON object from r
func DecodePayload(r io.Reader) (*Payload, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxPayloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(data) > MaxPayloadBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrMalformedPayload, MaxPayloadBytes)
	}
	return DecodePayloadBytes(data)
}

// DecodePayloadBytes parses data as a JSON object
func DecodePayloadBytes(data []byte) (*Payload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedPayload)
	}

	var p Payload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &p, nil
}

// Validated is a payload whose fields have all been checked and coerced
type Validated struct {
	DeviceID        string
	Temperature     float64
	Humidity        float64
	RawGas          float64
	RawDust         float64
	ClientAQI       *float64
	IPAddress       string
	FirmwareVersion string
	Timestamp       *time.Time
}

// Validate checks required fields, numeric formats and ranges. deviceID is the
// identifier resolved by the caller; an empty one is reported as missing.
// A client supplied aqi is only range checked. The status field is ignored.
func Validate(p *Payload, deviceID string) (*Validated, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}

	v := &Validated{
		DeviceID:        strings.TrimSpace(deviceID),
		IPAddress:       strings.TrimSpace(p.IPAddress),
		FirmwareVersion: strings.TrimSpace(p.FirmwareVersion),
		Timestamp:       p.Timestamp,
	}

	fields := []struct {
		name string
		raw  json.RawMessage
		dst  *float64
	}{
		{"temperature", p.Temperature, &v.Temperature},
		{"humidity", p.Humidity, &v.Humidity},
		{"gas_level", p.GasLevel, &v.RawGas},
		{"dust_density", p.DustDensity, &v.RawDust},
	}
	for _, f := range fields {
		value, present, err := parseNumber(f.raw)
		if !present {
			return nil, &ValidationError{Kind: MissingField, Field: f.name}
		}
		if err != nil {
			return nil, &ValidationError{Kind: InvalidFormat, Field: f.name}
		}
		*f.dst = value
	}

	if v.DeviceID == "" {
		return nil, &ValidationError{Kind: MissingField, Field: "device_id"}
	}

	clientAQI, present, err := parseNumber(p.AQI)
	if err != nil {
		return nil, &ValidationError{Kind: InvalidFormat, Field: "aqi"}
	}
	if present {
		v.ClientAQI = &clientAQI
	}

	if err := checkRange("temperature", v.Temperature, MinTemperature, MaxTemperature); err != nil {
		return nil, err
	}
	if err := checkRange("humidity", v.Humidity, MinHumidity, MaxHumidity); err != nil {
		return nil, err
	}
	if v.ClientAQI != nil {
		if err := checkRange("aqi", *v.ClientAQI, MinClientAQI, MaxClientAQI); err != nil {
			return nil, err
		}
	}

	return v, nil
}

func checkRange(field string, value, min, max float64) error {
	if value < min || value > max {
		return &ValidationError{Kind: OutOfRange, Field: field, Min: min, Max: max}
	}
	return nil
}

// parseNumber accepts JSON numbers and numeric strings. null and absent
// values are reported as not present.
func parseNumber(raw json.RawMessage) (float64, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0, false, nil
	}

	text := string(trimmed)
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return 0, true, err
		}
		text = strings.TrimSpace(s)
	}

	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, true, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, true, fmt.Errorf("%q is not a finite number", text)
	}
	return value, true, nil
}

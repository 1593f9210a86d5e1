package telemetry

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RawRecord is one untyped vendor record as decoded from JSON. Field names and
// units vary across vendor firmware versions; nothing downstream of the
// normalizer ever touches a RawRecord.
type RawRecord map[string]any

// NormalizedRecord is the canonical triple produced from one raw record.
type NormalizedRecord struct {
	Location Location
	Asset    Asset
	Reading  Reading
	Warnings []string
}

// Field aliases observed across vendor firmware versions. The first alias in
// each list is the canonical name a re-serialized record uses.
var (
	aliasLocationID   = []string{"locationId", "location_id", "siteId", "site_id"}
	aliasLocationName = []string{"locationName", "siteName", "location_name"}
	aliasAddress      = []string{"address", "siteAddress", "site_address"}
	aliasCustomer     = []string{"customerName", "customer", "customer_name"}
	aliasLatitude     = []string{"latitude", "lat"}
	aliasLongitude    = []string{"longitude", "lng", "lon"}
	aliasAssetID      = []string{"assetId", "asset_id", "tankId", "tank_id", "sensorId"}
	aliasCapacity     = []string{"capacityLiters", "capacityLitres", "capacity", "tankSize"}
	aliasLevelLiters  = []string{"currentLevelLiters", "currentLevelLitres", "levelLiters", "level"}
	aliasLevelPercent = []string{"levelPercent", "fillPercent", "percentFull", "fill_percent"}
	aliasBattery      = []string{"batteryVoltage", "battery", "vbat"}
	aliasTemperature  = []string{"temperatureC", "temperature", "temp"}
	aliasSignal       = []string{"signalStrength", "rssi", "signal"}
	aliasSerial       = []string{"deviceSerial", "serialNumber", "serial"}
	aliasCommodity    = []string{"commodity", "product", "fuelType"}
	aliasOnline       = []string{"online", "isOnline", "is_online"}
	aliasTimestamp    = []string{"timestamp", "readingTime", "lastReading", "ts"}
)

// Normalizer maps raw vendor records into canonical shapes. It is a pure
// mapping apart from the injected clock, which only fills a missing reading
// timestamp.
type Normalizer struct {
	now func() time.Time
}

// NormalizerOption configures the normalizer.
type NormalizerOption func(*Normalizer)

// WithNow overrides the timestamp fallback clock.
func WithNow(now func() time.Time) NormalizerOption {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

// NewNormalizer constructs a normalizer.
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize converts one raw record into a canonical Location/Asset/Reading
// triple. Missing identifiers reject the record; missing numeric fields
// coerce to 0 with a warning; out-of-range percentages clamp with a warning.
func (n *Normalizer) Normalize(rec RawRecord) (*NormalizedRecord, error) {
	if len(rec) == 0 {
		return nil, &ValidationError{Field: "record", Reason: "empty record"}
	}

	locationID, ok := stringField(rec, aliasLocationID...)
	if !ok || locationID == "" {
		return nil, &ValidationError{Field: aliasLocationID[0], Reason: "missing location identifier"}
	}
	assetID, ok := stringField(rec, aliasAssetID...)
	if !ok || assetID == "" {
		return nil, &ValidationError{Field: aliasAssetID[0], Reason: "missing asset identifier"}
	}

	var warnings []string
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	capacity := numericOrZero(rec, &warnings, aliasCapacity...)
	level, levelOK := numericField(rec, aliasLevelLiters...)
	percent, percentOK := numericField(rec, aliasLevelPercent...)

	switch {
	case !levelOK && !percentOK:
		warn("missing %s and %s, coerced level to 0", aliasLevelLiters[0], aliasLevelPercent[0])
	case !levelOK && capacity > 0:
		level = percent / 100 * capacity
	case !levelOK:
		warn("missing %s, coerced to 0", aliasLevelLiters[0])
	case !percentOK && capacity > 0:
		percent = level / capacity * 100
	case !percentOK:
		warn("missing %s, coerced to 0", aliasLevelPercent[0])
	}

	if percent < 0 || percent > 100 {
		warn("%s %.1f out of range, clamped", aliasLevelPercent[0], percent)
		percent = clamp(percent, 0, 100)
	}
	if level < 0 {
		warn("%s negative, clamped to 0", aliasLevelLiters[0])
		level = 0
	}
	if capacity > 0 && level > capacity {
		warn("level %.1f exceeds capacity %.1f, clamped", level, capacity)
		level = capacity
	}

	ts, tsOK := timeField(rec, aliasTimestamp...)
	if !tsOK {
		ts = n.now().UTC()
		warn("missing %s, using receive time", aliasTimestamp[0])
	}

	name, _ := stringField(rec, aliasLocationName...)
	address, _ := stringField(rec, aliasAddress...)
	customer, _ := stringField(rec, aliasCustomer...)
	serial, _ := stringField(rec, aliasSerial...)
	commodity, _ := stringField(rec, aliasCommodity...)

	location := Location{
		ExternalID:      locationID,
		Name:            name,
		Address:         address,
		CustomerName:    customer,
		Latitude:        numericPtr(rec, aliasLatitude...),
		Longitude:       numericPtr(rec, aliasLongitude...),
		LastTelemetryAt: ts,
	}
	if location.Name == "" {
		location.Name = locationID
	}

	asset := Asset{
		ExternalID:         assetID,
		LocationExternalID: locationID,
		Online:             boolOrDefault(rec, true, aliasOnline...),
		CapacityLiters:     capacity,
		CurrentLevelLiters: level,
		DeviceSerial:       serial,
		BatteryVoltage:     numericPtr(rec, aliasBattery...),
		Commodity:          commodity,
	}

	reading := Reading{
		AssetExternalID: assetID,
		TS:              ts,
		LevelLiters:     level,
		LevelPercent:    percent,
		BatteryVoltage:  asset.BatteryVoltage,
		TemperatureC:    numericPtr(rec, aliasTemperature...),
		SignalStrength:  numericPtr(rec, aliasSignal...),
	}

	return &NormalizedRecord{
		Location: location,
		Asset:    asset,
		Reading:  reading,
		Warnings: warnings,
	}, nil
}

func stringField(rec RawRecord, aliases ...string) (string, bool) {
	for _, alias := range aliases {
		value, ok := rec[alias]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case string:
			return strings.TrimSpace(v), true
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		case int:
			return strconv.Itoa(v), true
		}
	}
	return "", false
}

func numericField(rec RawRecord, aliases ...string) (float64, bool) {
	for _, alias := range aliases {
		value, ok := rec[alias]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err == nil {
				return parsed, true
			}
		}
	}
	return 0, false
}

func numericOrZero(rec RawRecord, warnings *[]string, aliases ...string) float64 {
	value, ok := numericField(rec, aliases...)
	if !ok {
		*warnings = append(*warnings, fmt.Sprintf("missing %s, coerced to 0", aliases[0]))
		return 0
	}
	return value
}

func numericPtr(rec RawRecord, aliases ...string) *float64 {
	value, ok := numericField(rec, aliases...)
	if !ok {
		return nil
	}
	return &value
}

func boolOrDefault(rec RawRecord, fallback bool, aliases ...string) bool {
	for _, alias := range aliases {
		value, ok := rec[alias]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case bool:
			return v
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(v))
			if err == nil {
				return parsed
			}
		case float64:
			return v != 0
		}
	}
	return fallback
}

func timeField(rec RawRecord, aliases ...string) (time.Time, bool) {
	for _, alias := range aliases {
		value, ok := rec[alias]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case string:
			for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
				if ts, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
					return ts.UTC(), true
				}
			}
		case float64:
			if v <= 0 {
				continue
			}
			// Accept epoch milliseconds or seconds.
			if v > 1_000_000_000_000 {
				return time.UnixMilli(int64(v)).UTC(), true
			}
			return time.Unix(int64(v), 0).UTC(), true
		}
	}
	return time.Time{}, false
}

func clamp(value, low, high float64) float64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

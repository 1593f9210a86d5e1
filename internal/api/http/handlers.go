package apihttp

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const timeLayout = time.RFC3339

// LocationsHandler serves location queries.
type LocationsHandler struct {
	db *sql.DB
}

// NewLocationsHandler constructs a LocationsHandler.
func NewLocationsHandler(db *sql.DB) *LocationsHandler {
	return &LocationsHandler{db: db}
}

// ServeHTTP handles GET /api/v1/locations and /api/v1/locations/{external_id}.
func (h *LocationsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.db == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	externalID := strings.TrimPrefix(r.URL.Path, "/api/v1/locations")
	externalID = strings.Trim(externalID, "/")

	rows, err := queryLocations(r.Context(), h.db, externalID)
	if err != nil {
		http.Error(w, "query locations error", http.StatusInternalServerError)
		return
	}
	if externalID != "" {
		if len(rows) == 0 {
			http.Error(w, "location not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rows[0])
		return
	}
	if rows == nil {
		rows = []locationRow{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rows)
}

// AssetsHandler serves asset queries including derived consumption fields.
type AssetsHandler struct {
	db *sql.DB
}

// NewAssetsHandler constructs an AssetsHandler.
func NewAssetsHandler(db *sql.DB) *AssetsHandler {
	return &AssetsHandler{db: db}
}

// ServeHTTP handles GET /api/v1/assets, /api/v1/assets/{external_id} and
// /api/v1/assets/{external_id}/readings.
func (h *AssetsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.db == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/assets")
	rest = strings.Trim(rest, "/")
	switch {
	case rest == "":
		h.handleList(w, r)
	case strings.HasSuffix(rest, "/readings.csv"):
		h.handleReadingsCSV(w, r, strings.TrimSuffix(rest, "/readings.csv"))
	case strings.HasSuffix(rest, "/readings"):
		h.handleReadings(w, r, strings.TrimSuffix(rest, "/readings"))
	case !strings.Contains(rest, "/"):
		h.handleGet(w, r, rest)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *AssetsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	locationID := r.URL.Query().Get("location_id")
	rows, err := queryAssets(r.Context(), h.db, "", locationID)
	if err != nil {
		http.Error(w, "query assets error", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []assetRow{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rows)
}

func (h *AssetsHandler) handleGet(w http.ResponseWriter, r *http.Request, externalID string) {
	rows, err := queryAssets(r.Context(), h.db, externalID, "")
	if err != nil {
		http.Error(w, "query assets error", http.StatusInternalServerError)
		return
	}
	if len(rows) == 0 {
		http.Error(w, "asset not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rows[0])
}

func (h *AssetsHandler) handleReadings(w http.ResponseWriter, r *http.Request, externalID string) {
	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}
	rows, err := queryReadings(r.Context(), h.db, externalID, from, to)
	if err != nil {
		http.Error(w, "query readings error", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []readingRow{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rows)
}

func (h *AssetsHandler) handleReadingsCSV(w http.ResponseWriter, r *http.Request, externalID string) {
	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}
	rows, err := queryReadings(r.Context(), h.db, externalID, from, to)
	if err != nil {
		http.Error(w, "query readings error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{
		"asset_external_id",
		"ts",
		"level_liters",
		"level_percent",
		"battery_voltage",
		"temperature_c",
		"signal_strength",
	})
	for _, row := range rows {
		_ = writer.Write([]string{
			row.AssetExternalID,
			row.TS.Format(timeLayout),
			formatFloat(row.LevelLiters),
			formatFloat(row.LevelPercent),
			formatFloatPtr(row.BatteryVoltage),
			formatFloatPtr(row.TemperatureC),
			formatFloatPtr(row.SignalStrength),
		})
	}
	writer.Flush()
}

func parseRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	from, err := parseTimeQuery(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return time.Time{}, time.Time{}, false
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return time.Time{}, time.Time{}, false
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

type locationRow struct {
	ID              string     `json:"id"`
	ExternalID      string     `json:"external_id"`
	Name            string     `json:"name"`
	Address         string     `json:"address,omitempty"`
	CustomerName    string     `json:"customer_name,omitempty"`
	Latitude        *float64   `json:"latitude,omitempty"`
	Longitude       *float64   `json:"longitude,omitempty"`
	LastTelemetryAt *time.Time `json:"last_telemetry_at,omitempty"`
	Disabled        bool       `json:"disabled"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type assetRow struct {
	ID                 string    `json:"id"`
	ExternalID         string    `json:"external_id"`
	LocationExternalID string    `json:"location_external_id"`
	Online             bool      `json:"online"`
	CapacityLiters     float64   `json:"capacity_liters"`
	CurrentLevelLiters float64   `json:"current_level_liters"`
	LevelPercent       float64   `json:"level_percent"`
	DailyConsumption   *float64  `json:"daily_consumption_liters,omitempty"`
	DaysRemaining      *float64  `json:"days_remaining,omitempty"`
	DeviceSerial       string    `json:"device_serial,omitempty"`
	BatteryVoltage     *float64  `json:"battery_voltage,omitempty"`
	Commodity          string    `json:"commodity,omitempty"`
	Disabled           bool      `json:"disabled"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type readingRow struct {
	AssetExternalID string    `json:"asset_external_id"`
	TS              time.Time `json:"ts"`
	LevelLiters     float64   `json:"level_liters"`
	LevelPercent    float64   `json:"level_percent"`
	BatteryVoltage  *float64  `json:"battery_voltage,omitempty"`
	TemperatureC    *float64  `json:"temperature_c,omitempty"`
	SignalStrength  *float64  `json:"signal_strength,omitempty"`
}

func queryLocations(ctx context.Context, db *sql.DB, externalID string) ([]locationRow, error) {
	rows, err := db.QueryContext(ctx, `
SELECT
	id,
	external_id,
	name,
	address,
	customer_name,
	latitude,
	longitude,
	last_telemetry_at,
	disabled,
	created_at,
	updated_at
FROM locations
WHERE ($1 = '' OR external_id = $1)
ORDER BY external_id ASC`, externalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []locationRow
	for rows.Next() {
		var row locationRow
		var latitude, longitude sql.NullFloat64
		var lastTelemetryAt sql.NullTime
		if err := rows.Scan(
			&row.ID,
			&row.ExternalID,
			&row.Name,
			&row.Address,
			&row.CustomerName,
			&latitude,
			&longitude,
			&lastTelemetryAt,
			&row.Disabled,
			&row.CreatedAt,
			&row.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if latitude.Valid {
			v := latitude.Float64
			row.Latitude = &v
		}
		if longitude.Valid {
			v := longitude.Float64
			row.Longitude = &v
		}
		if lastTelemetryAt.Valid {
			t := lastTelemetryAt.Time.UTC()
			row.LastTelemetryAt = &t
		}
		row.CreatedAt = row.CreatedAt.UTC()
		row.UpdatedAt = row.UpdatedAt.UTC()
		result = append(result, row)
	}
	return result, rows.Err()
}

func queryAssets(ctx context.Context, db *sql.DB, externalID, locationID string) ([]assetRow, error) {
	rows, err := db.QueryContext(ctx, `
SELECT
	id,
	external_id,
	location_external_id,
	online,
	capacity_liters,
	current_level_liters,
	daily_consumption_liters,
	days_remaining,
	device_serial,
	battery_voltage,
	commodity,
	disabled,
	created_at,
	updated_at
FROM assets
WHERE ($1 = '' OR external_id = $1)
	AND ($2 = '' OR location_external_id = $2)
ORDER BY external_id ASC`, externalID, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []assetRow
	for rows.Next() {
		var row assetRow
		var dailyConsumption, daysRemaining, battery sql.NullFloat64
		if err := rows.Scan(
			&row.ID,
			&row.ExternalID,
			&row.LocationExternalID,
			&row.Online,
			&row.CapacityLiters,
			&row.CurrentLevelLiters,
			&dailyConsumption,
			&daysRemaining,
			&row.DeviceSerial,
			&battery,
			&row.Commodity,
			&row.Disabled,
			&row.CreatedAt,
			&row.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if dailyConsumption.Valid {
			v := dailyConsumption.Float64
			row.DailyConsumption = &v
		}
		if daysRemaining.Valid {
			v := daysRemaining.Float64
			row.DaysRemaining = &v
		}
		if battery.Valid {
			v := battery.Float64
			row.BatteryVoltage = &v
		}
		if row.CapacityLiters > 0 {
			pct := row.CurrentLevelLiters / row.CapacityLiters * 100
			if pct < 0 {
				pct = 0
			}
			if pct > 100 {
				pct = 100
			}
			row.LevelPercent = pct
		}
		row.CreatedAt = row.CreatedAt.UTC()
		row.UpdatedAt = row.UpdatedAt.UTC()
		result = append(result, row)
	}
	return result, rows.Err()
}

func queryReadings(ctx context.Context, db *sql.DB, externalID string, from, to time.Time) ([]readingRow, error) {
	rows, err := db.QueryContext(ctx, `
SELECT
	asset_external_id,
	ts,
	level_liters,
	level_percent,
	battery_voltage,
	temperature_c,
	signal_strength
FROM readings
WHERE asset_external_id = $1
	AND ts >= $2
	AND ts < $3
ORDER BY ts ASC`, externalID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []readingRow
	for rows.Next() {
		var row readingRow
		var battery, temperature, signal sql.NullFloat64
		if err := rows.Scan(
			&row.AssetExternalID,
			&row.TS,
			&row.LevelLiters,
			&row.LevelPercent,
			&battery,
			&temperature,
			&signal,
		); err != nil {
			return nil, err
		}
		if battery.Valid {
			v := battery.Float64
			row.BatteryVoltage = &v
		}
		if temperature.Valid {
			v := temperature.Float64
			row.TemperatureC = &v
		}
		if signal.Valid {
			v := signal.Float64
			row.SignalStrength = &v
		}
		row.TS = row.TS.UTC()
		result = append(result, row)
	}
	return result, rows.Err()
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, errors.New(key + " is required")
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func formatFloatPtr(value *float64) string {
	if value == nil {
		return ""
	}
	return formatFloat(*value)
}


package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"skylog/internal/models"
)

const locationColumns = `id, name, region, country, latitude, longitude, timezone, noaa_station_id, created_at`

func scanLocation(scan func(dest ...any) error) (*models.Location, error) {
	var (
		loc       models.Location
		timezone  sql.NullString
		stationID sql.NullString
	)
	if err := scan(&loc.ID, &loc.Name, &loc.Region, &loc.Country, &loc.Latitude, &loc.Longitude,
		&timezone, &stationID, &loc.CreatedAt); err != nil {
		return nil, err
	}
	loc.Timezone = timezone.String
	loc.NOAAStationID = stationID.String
	return &loc, nil
}

// GetLocation returns the location with id or ErrLocationNotFound.
func (db *DB) GetLocation(ctx context.Context, id int64) (*models.Location, error) {
	row := db.queryRow(ctx, "locations", `SELECT `+locationColumns+` FROM locations WHERE id = ?`, id)

	loc, err := scanLocation(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLocationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan location: %w", err)
	}
	return loc, nil
}

// ListLocations returns every location ordered by name.
func (db *DB) ListLocations(ctx context.Context) ([]models.Location, error) {
	rows, err := db.query(ctx, "locations", `SELECT `+locationColumns+` FROM locations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	var locations []models.Location
	for rows.Next() {
		loc, err := scanLocation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locations = append(locations, *loc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating locations: %w", err)
	}

	return locations, nil
}

// CreateLocation inserts loc and sets its ID.
func (db *DB) CreateLocation(ctx context.Context, loc *models.Location) error {
	res, err := db.exec(ctx, "INSERT", "locations",
		`INSERT INTO locations (name, region, country, latitude, longitude, timezone) VALUES (?, ?, ?, ?, ?, ?)`,
		loc.Name, loc.Region, loc.Country, loc.Latitude, loc.Longitude, nullString(loc.Timezone))
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicateLocation
		}
		return fmt.Errorf("failed to insert location: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read location id: %w", err)
	}
	loc.ID = id
	return nil
}

// UpdateLocationCoordinates stores coordinates and timezone learned from a
// provider response.
func (db *DB) UpdateLocationCoordinates(ctx context.Context, id int64, lat, lon float64, timezone string) error {
	_, err := db.exec(ctx, "UPDATE", "locations",
		`UPDATE locations SET latitude = ?, longitude = ?, timezone = ? WHERE id = ?`,
		lat, lon, nullString(timezone), id)
	if err != nil {
		return fmt.Errorf("failed to update coordinates for location %d: %w", id, err)
	}
	return nil
}

// UpdateNOAAStation caches the nearest tide station on the location.
func (db *DB) UpdateNOAAStation(ctx context.Context, id int64, stationID string) error {
	_, err := db.exec(ctx, "UPDATE", "locations",
		`UPDATE locations SET noaa_station_id = ? WHERE id = ?`, stationID, id)
	if err != nil {
		return fmt.Errorf("failed to update tide station for location %d: %w", id, err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

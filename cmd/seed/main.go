package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/spf13/cobra"

	"skylog/internal/app"
	"skylog/internal/database"
	"skylog/internal/models"
)

var (
	cfgFile string
	csvPath string
	resolve bool
)

var rootCmd = &cobra.Command{
	Use:   "seed",
	Short: "Import locations from a CSV file",
	Long: `seed reads name,region,country,latitude,longitude,timezone rows and creates
a location for each. Only name is required.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.Flags().StringVar(&csvPath, "file", "locations_seed.csv", "CSV file to import")
	rootCmd.Flags().BoolVar(&resolve, "resolve", false, "look up missing coordinates through the weather provider")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type seedRow struct {
	Name      string   `csv:"name"`
	Region    string   `csv:"region,omitempty"`
	Country   string   `csv:"country,omitempty"`
	Latitude  *float64 `csv:"latitude,omitempty"`
	Longitude *float64 `csv:"longitude,omitempty"`
	Timezone  string   `csv:"timezone,omitempty"`
}

func (r seedRow) location() models.Location {
	return models.Location{
		Name:      strings.TrimSpace(r.Name),
		Region:    strings.TrimSpace(r.Region),
		Country:   strings.TrimSpace(r.Country),
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Timezone:  strings.TrimSpace(r.Timezone),
	}
}

// readLocations decodes the CSV, dropping rows without a name.
func readLocations(r io.Reader) ([]models.Location, int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}

	var rows []seedRow
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, 0, fmt.Errorf("failed to parse CSV: %w", err)
	}

	locations := make([]models.Location, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		loc := row.location()
		if loc.Name == "" {
			skipped++
			continue
		}
		locations = append(locations, loc)
	}
	return locations, skipped, nil
}

func run(cmd *cobra.Command, args []string) error {
	file, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	locations, skipped, err := readLocations(file)
	if err != nil {
		return err
	}

	a, err := app.New(cfgFile)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.Logger
	ctx := context.Background()

	count := 0
	for i := range locations {
		loc := &locations[i]
		if resolve && !loc.HasCoordinates() {
			if current, err := a.Weather.Current(ctx, loc.Query()); err != nil {
				logger.Warn("could not resolve coordinates", "location", loc.Name, "error", err)
			} else {
				loc.Latitude, loc.Longitude = current.Place.Latitude, current.Place.Longitude
				if loc.Timezone == "" {
					loc.Timezone = current.Place.Timezone
				}
			}
		}

		if err := a.DB.CreateLocation(ctx, loc); err != nil {
			if errors.Is(err, database.ErrDuplicateLocation) {
				logger.Info("location already exists", "location", loc.Name)
			} else {
				logger.Error("failed to insert location", "location", loc.Name, "error", err)
			}
			skipped++
			continue
		}

		count++
		if count%100 == 0 {
			logger.Info("inserted locations", "count", count)
		}
	}

	logger.Info("import complete", "inserted", count, "skipped", skipped)
	return nil
}

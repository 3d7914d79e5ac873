// Package batcher implements the CSV Batcher (spec §4.4): it drains the
// record queue, validates and normalizes each record, rolls windowed CSV
// files, and enqueues completed files for upload.
package batcher

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/cursedremoteid/edge/internal/core/domain"
)

// csvHeader is the header row spec §6 fixes, in this exact order.
var csvHeader = []string{
	"Source Address", "Unique ID", "Timestamp", "Heading", "Ground Speed",
	"Vertical Speed", "Latitude", "Longitude", "Geodetic Altitude",
	"Speed Accuracy", "Horizontal Accuracy", "Geodetic Vertical Accuracy",
	"Barometric Altitude", "Barometric Altitude Accuracy", "Height", "Height Type",
}

// window is one open CSV file plus its row counter. It is not safe for
// concurrent use; the batcher owns exactly one at a time.
type window struct {
	path  string
	f     *os.File
	w     *csv.Writer
	count int
}

// openWindow allocates <dir>/remote-id-<uuid>.csv and writes the header
// row (spec §4.4 step 1).
func openWindow(dir, filename string) (*window, error) {
	path := dir + string(os.PathSeparator) + filename
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("batcher: create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("batcher: write header to %s: %w", path, err)
	}

	return &window{path: path, f: f, w: w}, nil
}

// writeRecord appends one Record's row, in the column order spec §6 fixes.
func (win *window) writeRecord(r domain.Record) error {
	row := []string{
		r.SrcAddr,
		r.UniqueID,
		r.TimestampString(),
		fmt.Sprintf("%d", r.Heading),
		formatFloat(r.GndSpeed),
		formatFloat(r.VertSpeed),
		formatFloat(r.Lat),
		formatFloat(r.Lon),
		fmt.Sprintf("%d", r.GeoAlt),
		fmt.Sprintf("%d", r.SpeedAcc),
		fmt.Sprintf("%d", r.HorzAcc),
		fmt.Sprintf("%d", r.GeoVertAcc),
		fmt.Sprintf("%d", r.BaroAlt),
		fmt.Sprintf("%d", r.BaroAltAcc),
		fmt.Sprintf("%d", r.Height),
		fmt.Sprintf("%d", r.HeightType),
	}
	if err := win.w.Write(row); err != nil {
		return err
	}
	win.count++
	return nil
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}

// closeAndKeep flushes and closes the file, leaving it on disk for
// upload (spec §4.4 step 4).
func (win *window) closeAndKeep() error {
	win.w.Flush()
	if err := win.w.Error(); err != nil {
		win.f.Close()
		return err
	}
	return win.f.Close()
}

// closeAndDelete closes the file and removes it from disk, used for
// empty windows and SIGINT-interrupted windows (spec §4.4 steps 3, 5).
func (win *window) closeAndDelete() {
	win.w.Flush()
	win.f.Close()
	os.Remove(win.path)
}

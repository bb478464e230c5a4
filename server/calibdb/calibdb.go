package calibdb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/rangefinder/pkg/rangefinder"
	"gorm.io/gorm"
)

// CalibDB stores the scale constant, and a history of calibrations.
// It implements rangefinder.ScaleStore.
type CalibDB struct {
	Log logs.Log
	DB  *gorm.DB
}

// Open or create the calibration database
func NewCalibDB(log logs.Log, dbFilename string) (*CalibDB, error) {
	os.MkdirAll(filepath.Dir(dbFilename), 0777)
	log.Infof("Opening calibration DB at '%v'", dbFilename)
	db, err := dbh.OpenDB(log, dbh.MakeSqliteConfig(dbFilename), Migrations(log), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open database %v: %w", dbFilename, err)
	}
	return &CalibDB{
		Log: log,
		DB:  db,
	}, nil
}

func (c *CalibDB) Close() {
	if sqlDB, err := c.DB.DB(); err == nil {
		sqlDB.Close()
	}
}

// Returns the value of the variable, or "" if it has never been set
func (c *CalibDB) GetVariable(key VariableKey) (string, error) {
	v := Variable{}
	err := c.DB.Where("key = ?", string(key)).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	} else if err != nil {
		return "", err
	}
	return v.Value, nil
}

func (c *CalibDB) SetVariable(key VariableKey, value string) error {
	return c.DB.Exec("INSERT INTO variable (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value", string(key), value).Error
}

// LoadScale returns the saved scale constant, or rangefinder.DefaultScale if none has been saved
func (c *CalibDB) LoadScale() (float32, error) {
	v, err := c.GetVariable(VarScale)
	if err != nil {
		return 0, err
	}
	if v == "" {
		return rangefinder.DefaultScale, nil
	}
	k, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return 0, fmt.Errorf("Invalid scale constant '%v' in database: %w", v, err)
	}
	return float32(k), nil
}

func (c *CalibDB) SaveScale(k float32) error {
	return c.SetVariable(VarScale, strconv.FormatFloat(float64(k), 'g', -1, 32))
}

// Record a completed calibration
func (c *CalibDB) AddCalibration(r rangefinder.CalibrationResult) (*Calibration, error) {
	rec := Calibration{
		CreatedAt:   dbh.MakeIntTime(time.Now()),
		ClassName:   r.ClassName,
		Axis:        r.Axis.String(),
		Manual:      r.Manual,
		SizeMeters:  r.SizeMeters,
		SpanPixels:  r.SpanPixels,
		RawEstimate: r.RawEstimate,
		Scale:       r.Scale,
	}
	if err := c.DB.Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("Failed to save calibration: %w", err)
	}
	return &rec, nil
}

// Returns the most recent calibrations, newest first
func (c *CalibDB) RecentCalibrations(limit int) ([]Calibration, error) {
	if limit <= 0 {
		limit = 100
	}
	recs := []Calibration{}
	if err := c.DB.Order("id DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// Package dataset reads scheduling inputs from YAML or JSON files.
package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// Format names a dataset encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the encoding from a file extension. Anything that is not .json is read as YAML.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Load reads and decodes a dataset file.
func Load(path string) (dto.Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return dto.Dataset{}, fmt.Errorf("read dataset: %w", err)
	}
	ds, err := Parse(raw, FormatFromPath(path))
	if err != nil {
		return dto.Dataset{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return ds, nil
}

// Parse decodes a dataset. YAML documents are normalised through JSON so both encodings share
// the models' snake_case keys. A missing institution block falls back to the default calendar.
func Parse(raw []byte, format Format) (dto.Dataset, error) {
	payload := raw
	if format == FormatYAML {
		var doc any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return dto.Dataset{}, fmt.Errorf("decode yaml: %w", err)
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return dto.Dataset{}, fmt.Errorf("normalise yaml: %w", err)
		}
		payload = converted
	}

	var envelope struct {
		dto.Dataset
		Institution *models.Institution `json:"institution"`
	}
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&envelope); err != nil {
		return dto.Dataset{}, fmt.Errorf("decode dataset: %w", err)
	}

	ds := envelope.Dataset
	ds.Institution = models.DefaultInstitution()
	if envelope.Institution != nil {
		ds.Institution = *envelope.Institution
	}
	return ds, nil
}

// LoadSchedule reads a JSON array of slots, as written by the CLI's json output.
func LoadSchedule(path string) ([]models.ScheduleSlot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule: %w", err)
	}
	var slots []models.ScheduleSlot
	if err := json.Unmarshal(raw, &slots); err == nil {
		return slots, nil
	}
	var wrapped struct {
		Schedule []models.ScheduleSlot `json:"schedule"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}
	return wrapped.Schedule, nil
}

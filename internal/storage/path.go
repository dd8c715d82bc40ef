package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

const exportRoot = "exports"

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildExportPath lays exports out by UTC day:
// exports/YYYY/MM/DD/<id>.<ext>.
func BuildExportPath(at time.Time, id, extension string) (string, error) {
	if err := validatePathComponent(id, "export id"); err != nil {
		return "", err
	}
	if err := validatePathComponent(extension, "file extension"); err != nil {
		return "", err
	}
	ts := at.UTC()
	return path.Join(
		exportRoot,
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", ts.Month()),
		fmt.Sprintf("%02d", ts.Day()),
		id+"."+extension,
	), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}

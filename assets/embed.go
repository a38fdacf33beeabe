package assets

import (
	"embed"
	"io/fs"
)

//go:embed levels.yaml icons.yaml migrations/*.sql
var FS embed.FS

// LevelsYAML returns the embedded campaign level table.
func LevelsYAML() ([]byte, error) {
	return FS.ReadFile("levels.yaml")
}

// IconsYAML returns the embedded tile icon set.
func IconsYAML() ([]byte, error) {
	return FS.ReadFile("icons.yaml")
}

// Migrations exposes the embedded SQL migrations rooted at their directory.
func Migrations() (fs.FS, error) {
	return fs.Sub(FS, "migrations")
}

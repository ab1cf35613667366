package scaffold

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/freudmarin/TaskBoardApp/internal/config"
)

// CheckExisting returns an error if dir already holds a taskboard.yml.
func CheckExisting(dir string) error {
	path := filepath.Join(dir, config.DefaultPath)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("already initialized\n\nFound existing: %s\n\nUse 'taskboard init --force' to overwrite it", config.DefaultPath)
	}
	return nil
}

package database

import (
	"errors"
	"fmt"
	"os"

	"github.com/dnldd/alarm/shared"
	"gopkg.in/yaml.v3"
)

// programsFile is the layout of an alarm program seed file.
type programsFile struct {
	Symbols  []symbolEntry               `yaml:"symbols"`
	Programs []shared.AlarmProgramConfig `yaml:"programs"`
}

// symbolEntry is a symbol of an alarm program seed file.
type symbolEntry struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

// ReadProgramsFile reads the symbols and alarm programs of the provided yaml seed file.
func ReadProgramsFile(path string) ([]shared.Symbol, []shared.AlarmProgramConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading programs file '%s': %w", path, err)
	}

	var file programsFile
	err = yaml.Unmarshal(b, &file)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: parsing programs file '%s': %v", shared.ErrConfiguration, path, err)
	}

	var errs error
	for idx := range file.Programs {
		if file.Programs[idx].Algorithm == "" {
			errs = errors.Join(errs, fmt.Errorf("%w: program %d has no algorithm", shared.ErrConfiguration, idx))
		}
	}
	if errs != nil {
		return nil, nil, errs
	}

	symbols := make([]shared.Symbol, 0, len(file.Symbols))
	for _, entry := range file.Symbols {
		symbols = append(symbols, shared.Symbol{Code: entry.Code, Name: entry.Name})
	}

	return symbols, file.Programs, nil
}

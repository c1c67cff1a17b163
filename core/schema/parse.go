package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseFile parses a schema definition from a YAML file.
func ParseFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read file %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse parses a schema definition from YAML bytes.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ParseDir parses every YAML file in a directory, including subdirectories,
// and merges them into one Config. Files are read in lexical order.
func ParseDir(dir string) (Config, error) {
	var merged Config

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Config{}, fmt.Errorf("read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			sub, err := ParseDir(path)
			if err != nil {
				return Config{}, err
			}
			if err := merge(&merged, sub); err != nil {
				return Config{}, fmt.Errorf("%s: %w", path, err)
			}
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		cfg, err := ParseFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := merge(&merged, cfg); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}

	return merged, nil
}

func merge(dst *Config, src Config) error {
	dst.Collections = append(dst.Collections, src.Collections...)
	dst.Globals = append(dst.Globals, src.Globals...)

	if src.Localization.Enabled() {
		if dst.Localization.Enabled() {
			return fmt.Errorf("localization is defined more than once")
		}
		dst.Localization = src.Localization
	}
	return nil
}

// Validate checks the structural rules that do not need the whole config.
// Field level rules are enforced by the sanitizer.
func Validate(cfg Config) error {
	var errs []string

	for i, c := range cfg.Collections {
		if c.Slug == "" {
			errs = append(errs, fmt.Sprintf("collection #%d: slug is required", i))
			continue
		}
		if !IsValidSlug(c.Slug) {
			errs = append(errs, fmt.Sprintf("collection slug %q is not valid", c.Slug))
		}
	}

	for i, g := range cfg.Globals {
		if g.Slug == "" {
			errs = append(errs, fmt.Sprintf("global #%d: slug is required", i))
			continue
		}
		if !IsValidSlug(g.Slug) {
			errs = append(errs, fmt.Sprintf("global slug %q is not valid", g.Slug))
		}
	}

	if l := cfg.Localization; l.Enabled() && l.DefaultLocale != "" {
		found := false
		for _, locale := range l.Locales {
			if locale == l.DefaultLocale {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, fmt.Sprintf("default locale %q is not in locales", l.DefaultLocale))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsValidSlug checks that s is usable as a collection or global slug:
// a letter followed by letters, digits, '-' or '_'.
func IsValidSlug(s string) bool {
	if s == "" {
		return false
	}

	for i, c := range s {
		if i == 0 {
			if !isLetter(c) {
				return false
			}
			continue
		}
		if !isLetter(c) && !isDigit(c) && c != '_' && c != '-' {
			return false
		}
	}

	return true
}

func isLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}

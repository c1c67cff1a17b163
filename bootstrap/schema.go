package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/artpar/contentcore/config"
	"github.com/artpar/contentcore/core/schema"
	"github.com/artpar/contentcore/plugins/nesteddocs"
)

// BuildSchema parses the schema directory and applies the configured
// plugins. The result still needs sanitizing, which Runtime.Load does.
func BuildSchema(cfg *config.Config) (schema.Config, error) {
	s, err := schema.ParseDir(cfg.Schema.Dir)
	if err != nil {
		return schema.Config{}, fmt.Errorf("parse schema: %w", err)
	}

	for i, nd := range cfg.Plugins.NestedDocs {
		s, err = nesteddocs.Apply(s, NestedDocsOptions(nd))
		if err != nil {
			return schema.Config{}, fmt.Errorf("plugins.nested_docs[%d]: %w", i, err)
		}
	}
	return s, nil
}

// NestedDocsOptions translates plugin configuration into plugin options.
// Breadcrumb urls join the values of the url field, "slug" by default.
func NestedDocsOptions(cfg config.NestedDocsConfig) nesteddocs.Options {
	urlField := cfg.URLField
	if urlField == "" {
		urlField = "slug"
	}

	opts := nesteddocs.Options{
		Collections:          cfg.Collections,
		ParentFieldSlug:      cfg.ParentField,
		BreadcrumbsFieldSlug: cfg.BreadcrumbsField,
		GenerateURL:          nesteddocs.SlugURL(urlField),
	}
	if cfg.LabelField != "" {
		opts.GenerateLabel = nesteddocs.FieldLabel(cfg.LabelField)
	}
	return opts
}

func sameNestedDocs(a, b []config.NestedDocsConfig) bool {
	return slices.EqualFunc(a, b, func(x, y config.NestedDocsConfig) bool {
		return slices.Equal(x.Collections, y.Collections) &&
			x.ParentField == y.ParentField &&
			x.BreadcrumbsField == y.BreadcrumbsField &&
			x.URLField == y.URLField &&
			x.LabelField == y.LabelField
	})
}

// schemaWatcher reports changes to the YAML files of a schema directory.
type schemaWatcher struct {
	watcher *fsnotify.Watcher
	logger  zerolog.Logger
}

func newSchemaWatcher(dir string, logger zerolog.Logger) (*schemaWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch directory: %w", err)
	}

	logger.Info().Str("dir", dir).Msg("watching schema for changes")
	return &schemaWatcher{watcher: watcher, logger: logger}, nil
}

// run calls onChange for every change to a YAML file until ctx is done.
func (w *schemaWatcher) run(ctx context.Context, onChange func()) error {
	defer w.watcher.Close()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !isSchemaFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			w.logger.Debug().
				Str("event", event.Op.String()).
				Str("file", event.Name).
				Msg("schema file changed")
			onChange()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("schema watcher error")

		case <-ctx.Done():
			return nil
		}
	}
}

func isSchemaFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

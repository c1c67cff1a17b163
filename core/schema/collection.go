package schema

// Config is the set of collections and globals an application serves.
type Config struct {
	Collections  []Collection `yaml:"collections,omitempty"`
	Globals      []Global     `yaml:"globals,omitempty"`
	Localization Localization `yaml:"localization,omitempty"`
}

// Localization configures locales. Localized fields are only honored when enabled.
type Localization struct {
	Locales       []string `yaml:"locales,omitempty"`
	DefaultLocale string   `yaml:"defaultLocale,omitempty"`
}

// Enabled reports whether any locale is configured.
func (l Localization) Enabled() bool {
	return len(l.Locales) > 0
}

// Collection describes one document type.
type Collection struct {
	// Slug identifies the collection (e.g., "pages").
	Slug string `yaml:"slug"`

	Labels Labels          `yaml:"labels,omitempty"`
	Admin  CollectionAdmin `yaml:"admin,omitempty"`
	Fields []Field         `yaml:"fields"`

	// Timestamps adds createdAt and updatedAt. Defaults to true.
	Timestamps *bool `yaml:"timestamps,omitempty"`

	// Auth adds email and password fields.
	Auth bool `yaml:"auth,omitempty"`

	Hooks CollectionHooks `yaml:"-"`
}

// HasTimestamps reports whether createdAt/updatedAt are maintained.
func (c Collection) HasTimestamps() bool {
	if c.Timestamps != nil {
		return *c.Timestamps
	}
	return true
}

// Field returns the top-level data field with the given name, looking
// through presentational containers.
func (c Collection) Field(name string) (Field, bool) {
	return FindField(c.Fields, name)
}

// CollectionAdmin holds collection presentation settings.
type CollectionAdmin struct {
	// UseAsTitle names the field used as the document title.
	UseAsTitle  string `yaml:"useAsTitle,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// Labels are singular and plural display names.
type Labels struct {
	Singular string `yaml:"singular,omitempty"`
	Plural   string `yaml:"plural,omitempty"`
}

// Global is a singleton document type.
type Global struct {
	Slug   string  `yaml:"slug"`
	Label  string  `yaml:"label,omitempty"`
	Fields []Field `yaml:"fields"`

	Hooks CollectionHooks `yaml:"-"`
}

// FindField looks up a data field by name among siblings, descending into
// presentational containers, which share their parent's data.
func FindField(fields []Field, name string) (Field, bool) {
	for _, f := range fields {
		if f.Type.Presentational() {
			if found, ok := FindField(f.Fields, name); ok {
				return found, true
			}
			continue
		}
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

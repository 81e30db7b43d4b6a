package trino

import (
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// RowFilterRule is one configured row filter: grant expression to anyone
// authorized for action on the table's resource tag.
type RowFilterRule struct {
	Action     string `yaml:"action"`
	Expression string `yaml:"expression"`
}

// ColumnRule is one column's mask configuration within a table's
// ColumnMaskRule.
type ColumnRule struct {
	ColumnName     string  `yaml:"columnName"`
	ViewExpression string  `yaml:"viewExpression"`
	Identity       *string `yaml:"identity,omitempty"`
	Action         *string `yaml:"action,omitempty"`
}

// ColumnMaskRule is a table's column-masking configuration: a default
// action applied to every column unless that column overrides it.
type ColumnMaskRule struct {
	Action  string       `yaml:"action"`
	Columns []ColumnRule `yaml:"columns"`
}

const defaultColumnMaskAction = "AddColumnMask"

// rawConfig mirrors the on-disk YAML shape before defaulting and
// deduplication are applied.
type rawConfig struct {
	RowFilters    map[string][]RowFilterRule `yaml:"rowFilters"`
	ColumnMasking map[string]ColumnMaskRule  `yaml:"columnMasking"`
}

// AuthzConfig is the parsed, validated Trino row-filter/column-mask
// configuration.
type AuthzConfig struct {
	RowFilters    map[string][]RowFilterRule
	ColumnMasking map[string]ColumnMaskRule
}

// LoadConfig reads the Trino authz YAML file at path. A missing path (or
// empty string) returns an empty config, not an error — Trino integration
// is optional. A parse failure is logged and also returns an empty config,
// since a broken config should degrade to "no filters configured" rather
// than take the sidecar down.
func LoadConfig(path string, logger zerolog.Logger) *AuthzConfig {
	empty := &AuthzConfig{RowFilters: map[string][]RowFilterRule{}, ColumnMasking: map[string]ColumnMaskRule{}}
	if path == "" {
		return empty
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Error().Err(err).Str("path", path).Msg("failed to read trino authz config")
		}
		return empty
	}

	var raw rawConfig
	if err := yaml.Unmarshal(contents, &raw); err != nil {
		logger.Error().Err(err).Str("path", path).Msg("failed to parse trino authz config")
		return empty
	}

	cfg := &AuthzConfig{
		RowFilters:    raw.RowFilters,
		ColumnMasking: make(map[string]ColumnMaskRule, len(raw.ColumnMasking)),
	}
	if cfg.RowFilters == nil {
		cfg.RowFilters = map[string][]RowFilterRule{}
	}

	for table, rule := range raw.ColumnMasking {
		if rule.Action == "" {
			rule.Action = defaultColumnMaskAction
		}
		rule.Columns = dedupeColumns(table, rule.Columns, logger)
		cfg.ColumnMasking[table] = rule
	}

	logger.Info().
		Int("row_filter_resources", len(cfg.RowFilters)).
		Int("column_mask_resources", len(cfg.ColumnMasking)).
		Str("path", path).
		Msg("loaded trino authz config")
	return cfg
}

// dedupeColumns keeps the first occurrence of each column name, logging a
// warning for every duplicate dropped.
func dedupeColumns(table string, columns []ColumnRule, logger zerolog.Logger) []ColumnRule {
	seen := make(map[string]bool, len(columns))
	out := make([]ColumnRule, 0, len(columns))
	for _, c := range columns {
		if seen[c.ColumnName] {
			logger.Warn().Str("table", table).Str("column", c.ColumnName).
				Msg("duplicate column in column mask config, keeping first occurrence")
			continue
		}
		seen[c.ColumnName] = true
		out = append(out, c)
	}
	return out
}

// Filters returns the row filters configured for a resource tag, or nil if
// none are configured.
func (c *AuthzConfig) Filters(resourceTag string) []RowFilterRule {
	return c.RowFilters[resourceTag]
}

// ColumnMasks returns the column mask configuration for a resource tag, or
// false if the table has none configured.
func (c *AuthzConfig) ColumnMasks(resourceTag string) (ColumnMaskRule, bool) {
	rule, ok := c.ColumnMasking[resourceTag]
	return rule, ok
}

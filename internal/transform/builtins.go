package transform

import (
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/mitchellh/mapstructure"

	"github.com/streamkeep/pgcdc/pkg/event"
)

// FilterConfig is the decoded params of a "filter" hook.
type FilterConfig struct {
	IncludeTables []string `mapstructure:"include_tables"`
	ExcludeTables []string `mapstructure:"exclude_tables"`
}

// ExtractConfig is the decoded params of an "extract" hook.
type ExtractConfig struct {
	Columns []string `mapstructure:"columns"`
}

// ReplaceConfig is the decoded params of a "replace" hook.
type ReplaceConfig struct {
	Regex []RegexRule `mapstructure:"regex"`
}

// RegexRule is one pattern/replace pair of a ReplaceConfig.
type RegexRule struct {
	Pattern string `mapstructure:"pattern"`
	Replace string `mapstructure:"replace"`
}

// tableOf resolves the schema.table identity of an event that carries
// one, consulting the schema resolver for row-level events that only
// carry a rel_id. Events with no table identity (Begin/Commit/Origin/
// TypeMessage) return ok=false and are left alone by table-scoped hooks.
func tableOf(e event.ReplicationEvent, schema SchemaResolver) (namespace, name string, ok bool) {
	switch m := e.Message.(type) {
	case event.Relation:
		return m.Namespace, m.Name, true
	case event.Insert:
		return lookupTable(schema, m.RelID)
	case event.Update:
		return lookupTable(schema, m.RelID)
	case event.Delete:
		return lookupTable(schema, m.RelID)
	case event.Truncate:
		if len(m.RelIDs) == 0 {
			return "", "", false
		}
		return lookupTable(schema, m.RelIDs[0])
	default:
		return "", "", false
	}
}

func lookupTable(schema SchemaResolver, relID uint32) (string, string, bool) {
	rel, ok := schema.Get(relID)
	if !ok {
		return "", "", false
	}
	return rel.Namespace, rel.Name, true
}

// filter drops events whose table matches exclude_tables or fails to
// match a non-empty include_tables list. Patterns are schema.table
// globs (filepath.Match syntax), matching pkg/pipeline/transform's
// table-ref matching.
func newFilterHook(params map[string]interface{}, deps Deps) (Hook, error) {
	var cfg FilterConfig
	if err := mapstructure.Decode(params, &cfg); err != nil {
		return nil, fmt.Errorf("filter: decode config: %w", err)
	}

	return func(e event.ReplicationEvent) ([]event.ReplicationEvent, error) {
		ns, name, ok := tableOf(e, deps.Schema)
		if !ok {
			return []event.ReplicationEvent{e}, nil
		}
		ref := ns + "." + name

		for _, pattern := range cfg.ExcludeTables {
			if matched, _ := filepath.Match(pattern, ref); matched {
				return nil, nil
			}
		}
		if len(cfg.IncludeTables) == 0 {
			return []event.ReplicationEvent{e}, nil
		}
		for _, pattern := range cfg.IncludeTables {
			if matched, _ := filepath.Match(pattern, ref); matched {
				return []event.ReplicationEvent{e}, nil
			}
		}
		return nil, nil
	}, nil
}

// extract keeps only the named columns of Insert/Update tuples,
// dropping the rest positionally. Relation columns are filtered the
// same way so the sink's translated CREATE TABLE matches the narrowed
// tuples.
func newExtractHook(params map[string]interface{}, deps Deps) (Hook, error) {
	var cfg ExtractConfig
	if err := mapstructure.Decode(params, &cfg); err != nil {
		return nil, fmt.Errorf("extract: decode config: %w", err)
	}
	if len(cfg.Columns) == 0 {
		return nil, fmt.Errorf("extract: columns is required")
	}
	keep := make(map[string]bool, len(cfg.Columns))
	for _, col := range cfg.Columns {
		keep[col] = true
	}

	return func(e event.ReplicationEvent) ([]event.ReplicationEvent, error) {
		switch m := e.Message.(type) {
		case event.Relation:
			m.Columns = filterColumns(m.Columns, keep)
			e.Message = event.Relation{RelationBody: m.RelationBody}
		case event.Insert:
			rel, ok := deps.Schema.Get(m.RelID)
			if !ok {
				return []event.ReplicationEvent{e}, nil
			}
			m.Tuple = filterTuple(m.Tuple, rel.Columns, keep)
			e.Message = m
		case event.Update:
			rel, ok := deps.Schema.Get(m.RelID)
			if !ok {
				return []event.ReplicationEvent{e}, nil
			}
			m.NewTuple = filterTuple(m.NewTuple, rel.Columns, keep)
			e.Message = m
		}
		return []event.ReplicationEvent{e}, nil
	}, nil
}

func filterColumns(cols []event.Column, keep map[string]bool) []event.Column {
	out := make([]event.Column, 0, len(cols))
	for _, c := range cols {
		if keep[c.Name] {
			out = append(out, c)
		}
	}
	return out
}

func filterTuple(t event.Tuple, cols []event.Column, keep map[string]bool) event.Tuple {
	out := make(event.Tuple, 0, len(t))
	for i, cell := range t {
		if i < len(cols) && keep[cols[i].Name] {
			out = append(out, cell)
		}
	}
	return out
}

// replace runs each configured regex substitution over every
// event.String cell in Insert/Update tuples.
type regexReplacement struct {
	re          *regexp.Regexp
	replacement string
}

func newReplaceHook(params map[string]interface{}, deps Deps) (Hook, error) {
	var cfg ReplaceConfig
	if err := mapstructure.Decode(params, &cfg); err != nil {
		return nil, fmt.Errorf("replace: decode config: %w", err)
	}
	if len(cfg.Regex) == 0 {
		return nil, fmt.Errorf("replace: regex is required")
	}

	replacements := make([]regexReplacement, 0, len(cfg.Regex))
	for _, rule := range cfg.Regex {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("replace: compile pattern %q: %w", rule.Pattern, err)
		}
		replacements = append(replacements, regexReplacement{re: re, replacement: rule.Replace})
	}

	apply := func(t event.Tuple) event.Tuple {
		out := make(event.Tuple, len(t))
		for i, cell := range t {
			if s, ok := cell.(event.String); ok {
				v := s.V
				for _, r := range replacements {
					v = r.re.ReplaceAllString(v, r.replacement)
				}
				out[i] = event.String{V: v}
			} else {
				out[i] = cell
			}
		}
		return out
	}

	return func(e event.ReplicationEvent) ([]event.ReplicationEvent, error) {
		switch m := e.Message.(type) {
		case event.Insert:
			m.Tuple = apply(m.Tuple)
			e.Message = m
		case event.Update:
			m.NewTuple = apply(m.NewTuple)
			e.Message = m
		}
		return []event.ReplicationEvent{e}, nil
	}, nil
}

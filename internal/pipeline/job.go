package pipeline

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/systmms/dsload/internal/transform"
)

//go:embed schema/job.schema.json
var jobSchema []byte

// JobConfig is the value stored in a config block
type JobConfig struct {
	Rules     *transform.RuleSet
	TableName string
	Schema    string
}

type rawJobConfig struct {
	TransformRules json.RawMessage `json:"transform_rules"`
	TableName      string          `json:"table_name"`
	Schema         string          `json:"schema"`
}

// ParseJobConfig validates a config block value and parses its transform
// rules. Keys other than transform_rules, table_name and schema are ignored.
func ParseJobConfig(data []byte) (*JobConfig, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(jobSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, &ConfigurationError{Field: "config", Message: "job configuration is not valid JSON", Err: err}
	}
	if !result.Valid() {
		var messages []string
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}
		return nil, &ConfigurationError{
			Field:   "config",
			Message: fmt.Sprintf("invalid job configuration:\n  - %s", strings.Join(messages, "\n  - ")),
		}
	}

	var raw rawJobConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigurationError{Field: "config", Message: "failed to decode job configuration", Err: err}
	}

	rules, err := transform.ParseRuleSet(raw.TransformRules)
	if err != nil {
		return nil, &ConfigurationError{Field: "transform_rules", Message: "invalid transform rules", Err: err}
	}

	return &JobConfig{Rules: rules, TableName: raw.TableName, Schema: raw.Schema}, nil
}

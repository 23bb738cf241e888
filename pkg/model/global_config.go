package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	ConfigTypeString  = "STRING"
	ConfigTypeInteger = "INTEGER"
	ConfigTypeDecimal = "DECIMAL"
	ConfigTypeBoolean = "BOOLEAN"
	ConfigTypeJSON    = "JSON"
	ConfigTypeList    = "LIST"
)

// GlobalConfigEntry is a single key/value setting that tunes system-wide
// reschedule behavior outside the rule table.
type GlobalConfigEntry struct {
	Key         string    `json:"key" bson:"_id" validate:"required,min=2,max=50"`
	Value       string    `json:"value" bson:"value" validate:"required"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	ValueType   string    `json:"value_type" bson:"value_type" validate:"required,oneof=STRING INTEGER DECIMAL BOOLEAN JSON LIST"`
	Active      bool      `json:"active" bson:"active"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

// TypedValue converts the raw text value according to ValueType. LIST splits
// on commas and trims each element.
func (c *GlobalConfigEntry) TypedValue() (any, error) {
	switch c.ValueType {
	case ConfigTypeInteger:
		n, err := strconv.ParseInt(c.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", c.Key, err)
		}
		return n, nil
	case ConfigTypeDecimal:
		f, err := strconv.ParseFloat(c.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", c.Key, err)
		}
		return f, nil
	case ConfigTypeBoolean:
		switch strings.ToLower(c.Value) {
		case "true", "1", "yes":
			return true, nil
		}
		return false, nil
	case ConfigTypeJSON:
		var decoded any
		if err := json.Unmarshal([]byte(c.Value), &decoded); err != nil {
			return nil, fmt.Errorf("config %s: %w", c.Key, err)
		}
		return decoded, nil
	case ConfigTypeList:
		parts := strings.Split(c.Value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			out = append(out, strings.TrimSpace(p))
		}
		return out, nil
	}
	return c.Value, nil
}

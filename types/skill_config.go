package types

import (
	"fmt"
	"strconv"
)

// InputMode 配置项的输入方式
type InputMode string

const (
	InputModeText     InputMode = "inputText"
	InputModeTextArea InputMode = "inputTextArea"
	InputModeSelect   InputMode = "select"
	InputModeSwitch   InputMode = "switch"
)

// DefaultLocale is used when a label has no translation for the requested locale.
const DefaultLocale = "en"

// LocalizedText maps a locale to display text.
type LocalizedText map[string]string

// Get returns the text for locale, falling back to DefaultLocale.
func (t LocalizedText) Get(locale string) string {
	if v, ok := t[locale]; ok {
		return v
	}
	return t[DefaultLocale]
}

// ConfigOption is one choice of a select item.
type ConfigOption struct {
	Value  string        `json:"value"`
	Labels LocalizedText `json:"labelDict,omitempty"`
}

// ConfigItem declares one option a skill accepts.
type ConfigItem struct {
	Key          string         `json:"key"`
	InputMode    InputMode      `json:"inputMode"`
	DefaultValue any            `json:"defaultValue,omitempty"`
	Required     bool           `json:"required,omitempty"`
	Labels       LocalizedText  `json:"labelDict,omitempty"`
	Descriptions LocalizedText  `json:"descriptionDict,omitempty"`
	Options      []ConfigOption `json:"options,omitempty"`
}

// ConfigSchema is the ordered option set of a skill. Read-only for the engine.
type ConfigSchema struct {
	Items []ConfigItem `json:"items"`
}

// Item looks up an item by key.
func (s ConfigSchema) Item(key string) (ConfigItem, bool) {
	for _, it := range s.Items {
		if it.Key == key {
			return it, true
		}
	}
	return ConfigItem{}, false
}

// Resolve merges user supplied values over item defaults.
// Unknown keys are ignored; select values must be one of the declared options.
func (s ConfigSchema) Resolve(values map[string]any) (ResolvedConfig, error) {
	out := make(ResolvedConfig, len(s.Items))
	for _, it := range s.Items {
		v, ok := values[it.Key]
		if !ok || v == nil || v == "" {
			v = it.DefaultValue
		}
		if v == nil || v == "" {
			if it.Required {
				return nil, Errorf(ErrInvalidRequest, "config %q is required", it.Key)
			}
			continue
		}
		if it.InputMode == InputModeSelect && len(it.Options) > 0 {
			sv := fmt.Sprint(v)
			valid := false
			for _, opt := range it.Options {
				if opt.Value == sv {
					valid = true
					break
				}
			}
			if !valid {
				return nil, Errorf(ErrInvalidRequest, "config %q: unsupported option %q", it.Key, sv)
			}
		}
		out[it.Key] = v
	}
	return out, nil
}

// ResolvedConfig holds effective option values for one invocation.
type ResolvedConfig map[string]any

// String returns the value for key as a string.
func (c ResolvedConfig) String(key string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Bool returns the value for key as a bool. Strings such as "true" are parsed.
func (c ResolvedConfig) Bool(key string) bool {
	switch v := c[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

// Int returns the value for key as an int, or def when absent or invalid.
func (c ResolvedConfig) Int(key string, def int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

package config

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const EnvPrefix = "TANKSIM_"

// Keys returns every recognised yaml key, sorted.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		if k := yamlKey(t.Field(i)); k != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func yamlKey(f reflect.StructField) string {
	tag := f.Tag.Get("yaml")
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return ""
	}
	return name
}

// Set assigns value, written as yaml, to the field with the given key:
// "0.5", "true", "[0, 5000]" or "{type: ramp, value: 20, to: 40, end: 600}".
func (c *Config) Set(key, value string) error {
	v := reflect.ValueOf(c).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if yamlKey(t.Field(i)) != key {
			continue
		}
		field := reflect.New(t.Field(i).Type)
		if err := yaml.Unmarshal([]byte(value), field.Interface()); err != nil {
			return fmt.Errorf("config: %s=%q: %w", key, value, err)
		}
		v.Field(i).Set(field.Elem())
		return nil
	}
	return fmt.Errorf("config: unknown key %q", key)
}

// ApplyEnv overrides fields from TANKSIM_<KEY> variables, e.g.
// TANKSIM_KP=1500. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, key := range Keys() {
		val, ok := lookup(EnvPrefix + strings.ToUpper(key))
		if !ok {
			continue
		}
		if err := c.Set(key, val); err != nil {
			return err
		}
	}
	return nil
}

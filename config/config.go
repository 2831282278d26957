// Package config loads the CLI-facing configuration for conveyorctl. The
// core conveyor package is never configured through this package — it is
// configured entirely through conveyor.Config Go structs — this exists only
// for the command-line wrapper and the standalone wsremoted server.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
)

// Backend selects which backend adapter conveyorctl wires up and how to
// reach it.
type Backend struct {
	// Kind is one of "localfile", "natsobj", "wsremote".
	Kind string `yaml:"kind"`
	// DSN is backend-specific: a filesystem path for localfile, a
	// "bucket/key" pair for natsobj (key "data" when no slash is given;
	// the server is always the default NATS URL), a websocket URL for
	// wsremote.
	DSN string `yaml:"dsn"`
}

// Capacity mirrors conveyor.Capacity for YAML/env decoding.
type Capacity struct {
	Initial int `yaml:"initial"`
	Max     int `yaml:"max"`
}

// Observability controls the optional metrics and tracing exporters.
type Observability struct {
	EnableTracing bool   `yaml:"enableTracing"`
	EnableMetrics bool   `yaml:"enableMetrics"`
	MetricsAddr   string `yaml:"metricsAddr"`
}

// CLIConfig is the top-level shape loaded by conveyorctl from a YAML file,
// with optional environment variable overrides layered on top.
type CLIConfig struct {
	Backend       Backend       `yaml:"backend"`
	Mode          string        `yaml:"mode"`
	WriteCapacity Capacity      `yaml:"writeCapacity"`
	ReadCapacity  Capacity      `yaml:"readCapacity"`
	Observability Observability `yaml:"observability"`
}

// Load loads configuration from a YAML file into target.
func Load(path string, target interface{}) error {
	return LoadYAML(path, target)
}

// LoadWithEnv loads configuration from file and applies environment
// variable overrides. Environment variables use the format
// PREFIX_FIELD_SUBFIELD, e.g. CONVEYOR_BACKEND_KIND.
func LoadWithEnv(path string, prefix string, target interface{}) error {
	if err := Load(path, target); err != nil {
		return fmt.Errorf("failed to load config file: %w", err)
	}
	if err := ApplyEnvOverrides(prefix, target); err != nil {
		return fmt.Errorf("failed to apply env overrides: %w", err)
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to a
// configuration struct using reflection, recursing into nested structs.
func ApplyEnvOverrides(prefix string, target interface{}) error {
	if prefix == "" {
		prefix = "CONVEYOR"
	}

	val := reflect.ValueOf(target)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("target must be a pointer to a struct")
	}

	return applyEnvToStruct(prefix, val.Elem())
}

func applyEnvToStruct(prefix string, val reflect.Value) error {
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		if !field.CanSet() {
			continue
		}

		envKey := prefix + "_" + strings.ToUpper(fieldType.Name)
		envKey = strings.ReplaceAll(envKey, "-", "_")

		if field.Kind() == reflect.Struct {
			if err := applyEnvToStruct(envKey, field); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldFromEnv(field, envValue); err != nil {
			return fmt.Errorf("failed to set field %s from env %s: %w", fieldType.Name, envKey, err)
		}
	}

	return nil
}

func setFieldFromEnv(field reflect.Value, envValue string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(envValue)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var intVal int64
		if _, err := fmt.Sscanf(envValue, "%d", &intVal); err != nil {
			return fmt.Errorf("invalid integer value: %s", envValue)
		}
		field.SetInt(intVal)
	case reflect.Bool:
		boolVal := strings.ToLower(envValue) == "true" || envValue == "1"
		field.SetBool(boolVal)
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

// Default returns a conservative default CLIConfig for a localfile backend.
func Default() CLIConfig {
	return CLIConfig{
		Backend:       Backend{Kind: "localfile", DSN: "./conveyor.dat"},
		Mode:          "readwrite",
		WriteCapacity: Capacity{Initial: 64 << 10, Max: 16 << 20},
		ReadCapacity:  Capacity{Initial: 64 << 10, Max: 16 << 20},
		Observability: Observability{EnableTracing: false, EnableMetrics: false, MetricsAddr: ":9090"},
	}
}

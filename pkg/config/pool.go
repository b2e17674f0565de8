package config

import (
	"fmt"
	"reflect"

	"github.com/fluxorio/fluxpool/pkg/core/concurrency"
)

// PoolValidator checks a concurrency.Config held at fieldPath (dot notation) inside
// the configuration, or the configuration itself when fieldPath is empty.
func PoolValidator(fieldPath string) Validator {
	return ValidatorFunc(func(config interface{}) error {
		val := reflect.ValueOf(config)
		if fieldPath != "" {
			if val.Kind() == reflect.Ptr {
				val = val.Elem()
			}
			val = getNestedField(val, fieldPath)
			if !val.IsValid() {
				return fmt.Errorf("field %s not found", fieldPath)
			}
		}
		if val.Kind() == reflect.Ptr {
			if val.IsNil() {
				return fmt.Errorf("pool config %s is nil", fieldPath)
			}
			val = val.Elem()
		}

		cfg, ok := val.Interface().(concurrency.Config)
		if !ok {
			return fmt.Errorf("field %s is %s, not a pool config", fieldPath, val.Type())
		}
		if err := cfg.Validate(); err != nil {
			if fieldPath == "" {
				return err
			}
			return fmt.Errorf("%s: %w", fieldPath, err)
		}
		return nil
	})
}

// LoadPool reads a pool configuration from path (optional) and PREFIX_* environment
// variables on top of concurrency.DefaultConfig, then validates it.
func LoadPool(path, prefix string) (concurrency.Config, error) {
	cfg := concurrency.DefaultConfig()
	if err := LoadWithEnv(path, prefix, &cfg); err != nil {
		return concurrency.Config{}, err
	}
	if err := Validate(&cfg, PoolValidator("")); err != nil {
		return concurrency.Config{}, err
	}
	return cfg, nil
}

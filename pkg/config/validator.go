package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Validators address fields by Go field name with dot notation for nesting,
// e.g. "Pool.MaxThreads" or "Relay.NATS.FlushTimeout".

// RequiredFields rejects configs where any of the named fields holds its zero value
func RequiredFields(fields ...string) Validator {
	return ValidatorFunc(func(config interface{}) error {
		var missing []string
		for _, path := range fields {
			v, err := lookupField(config, path)
			if err != nil {
				return err
			}
			if v.IsZero() || (v.Kind() == reflect.Slice || v.Kind() == reflect.Map) && v.Len() == 0 {
				missing = append(missing, path)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("required fields are missing: %s", strings.Join(missing, ", "))
		}
		return nil
	})
}

// RangeValidator checks that a numeric field lies in [min, max].
// Duration fields are rejected; use DurationRange for those.
func RangeValidator(fieldName string, min, max float64) Validator {
	return ValidatorFunc(func(config interface{}) error {
		v, err := lookupField(config, fieldName)
		if err != nil {
			return err
		}
		if v.Type() == durationType {
			return fmt.Errorf("field %s is a duration, use DurationRange", fieldName)
		}

		var n float64
		switch v.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			n = float64(v.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			n = float64(v.Uint())
		case reflect.Float32, reflect.Float64:
			n = v.Float()
		default:
			return fmt.Errorf("field %s is not numeric", fieldName)
		}
		if n < min || n > max {
			return fmt.Errorf("field %s value %v is out of range [%v, %v]", fieldName, n, min, max)
		}
		return nil
	})
}

// DurationRange checks that a time.Duration field lies in [min, max]. A max of
// zero leaves the range open above.
func DurationRange(fieldName string, min, max time.Duration) Validator {
	return ValidatorFunc(func(config interface{}) error {
		v, err := lookupField(config, fieldName)
		if err != nil {
			return err
		}
		if v.Type() != durationType {
			return fmt.Errorf("field %s is %s, not a duration", fieldName, v.Type())
		}
		d := time.Duration(v.Int())
		if d < min || (max > 0 && d > max) {
			if max > 0 {
				return fmt.Errorf("field %s value %s is out of range [%s, %s]", fieldName, d, min, max)
			}
			return fmt.Errorf("field %s value %s is below %s", fieldName, d, min)
		}
		return nil
	})
}

// OneOfValidator checks that a field equals one of the allowed values
func OneOfValidator(fieldName string, allowedValues ...interface{}) Validator {
	return ValidatorFunc(func(config interface{}) error {
		v, err := lookupField(config, fieldName)
		if err != nil {
			return err
		}
		got := v.Interface()
		for _, allowed := range allowedValues {
			if reflect.DeepEqual(got, allowed) {
				return nil
			}
		}
		return fmt.Errorf("field %s value %v is not one of allowed values: %v", fieldName, got, allowedValues)
	})
}

// lookupField resolves path inside config (a struct or pointer to one).
func lookupField(config interface{}, path string) (reflect.Value, error) {
	v := getNestedField(reflect.ValueOf(config), path)
	if !v.IsValid() {
		return reflect.Value{}, fmt.Errorf("field %s not found", path)
	}
	return v, nil
}

// getNestedField walks a dot-separated field path, following pointers. It returns
// the zero Value when a segment is missing or a pointer on the way is nil.
func getNestedField(val reflect.Value, fieldPath string) reflect.Value {
	current := val
	for _, part := range strings.Split(fieldPath, ".") {
		for current.Kind() == reflect.Ptr {
			if current.IsNil() {
				return reflect.Value{}
			}
			current = current.Elem()
		}
		if current.Kind() != reflect.Struct {
			return reflect.Value{}
		}
		current = current.FieldByName(part)
		if !current.IsValid() {
			return reflect.Value{}
		}
	}
	return current
}

package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/coral-mesh/coral-autoprof/internal/constants"
)

var durationType = reflect.TypeOf(time.Duration(0))

// LoadFromEnv overlays environment variables onto cfg.
//
// Fields are matched through their `env` tag. Nested structs contribute their
// `envPrefix` tag, and every name is prefixed with constants.EnvPrefix.
func LoadFromEnv(cfg any) error {
	return loadFromEnv(reflect.ValueOf(cfg), constants.EnvPrefix, os.LookupEnv)
}

type lookupFunc func(string) (string, bool)

func loadFromEnv(v reflect.Value, prefix string, lookup lookupFunc) error {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct && field.Type() != durationType {
			if err := loadFromEnv(field, prefix+fieldType.Tag.Get("envPrefix"), lookup); err != nil {
				return err
			}
			continue
		}

		tag := fieldType.Tag.Get("env")
		if tag == "" {
			continue
		}

		name := prefix + tag
		value, ok := lookup(name)
		if !ok || value == "" {
			continue
		}

		if err := setFieldValue(field, value, fieldType.Name, name); err != nil {
			return err
		}
	}

	return nil
}

// setFieldValue sets a field value from a string environment variable.
func setFieldValue(field reflect.Value, value string, fieldName string, envVar string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration for %s (%s): %w", fieldName, envVar, err)
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer for %s (%s): %w", fieldName, envVar, err)
		}
		field.SetInt(n)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for %s (%s): %w", fieldName, envVar, err)
		}
		field.SetBool(b)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float for %s (%s): %w", fieldName, envVar, err)
		}
		field.SetFloat(f)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type for %s (%s)", fieldName, envVar)
		}
		values := strings.Split(value, ",")
		for i, v := range values {
			values[i] = strings.TrimSpace(v)
		}
		field.Set(reflect.ValueOf(values))

	default:
		return fmt.Errorf("unsupported type %s for %s (%s)", field.Kind(), fieldName, envVar)
	}

	return nil
}

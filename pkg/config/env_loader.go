/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"context"
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/carverauto/camprov/pkg/logger"
)

var (
	// ErrDstMustBeNonNilPointer indicates that the destination must be a non-nil pointer.
	ErrDstMustBeNonNilPointer = errors.New("dst must be a non-nil pointer")
	// ErrDstMustBePointerToStruct indicates that the destination must be a pointer to a struct.
	ErrDstMustBePointerToStruct = errors.New("dst must be a pointer to a struct")

	errUnsupportedEnvType = errors.New("unsupported field type")
)

// EnvConfigLoader overlays environment variables onto a struct.
// Nested fields join their json names with underscores,
// so CAMPROV_CAMERA_TRIGGER_MODE maps to Config.Camera.TriggerMode.
type EnvConfigLoader struct {
	logger logger.Logger
	prefix string
}

// NewEnvConfigLoader creates a new environment variable config loader.
func NewEnvConfigLoader(log logger.Logger, prefix string) *EnvConfigLoader {
	return &EnvConfigLoader{
		logger: log,
		prefix: prefix,
	}
}

// Load implements ConfigLoader. The path argument is ignored.
func (e *EnvConfigLoader) Load(_ context.Context, _ string, dst interface{}) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return ErrDstMustBeNonNilPointer
	}

	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return ErrDstMustBePointerToStruct
	}

	// A complete JSON document in <prefix>CONFIG_JSON is applied first; individual variables still win.
	if raw, ok := os.LookupEnv(e.prefix + "CONFIG_JSON"); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), dst); err != nil {
			return fmt.Errorf("failed to unmarshal %sCONFIG_JSON: %w", e.prefix, err)
		}
	}

	return e.loadStruct(v, e.prefix)
}

func (e *EnvConfigLoader) loadStruct(v reflect.Value, prefix string) error {
	t := v.Type()

	var errs []error

	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}

		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}

		envName := prefix + strings.ToUpper(name)

		if err := e.loadField(field, envName); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (e *EnvConfigLoader) loadField(field reflect.Value, envName string) error {
	if isStructLike(field) {
		if field.Kind() == reflect.Ptr {
			if field.IsNil() {
				if !e.hasPrefix(envName + "_") {
					return nil
				}

				field.Set(reflect.New(field.Type().Elem()))
			}

			field = field.Elem()
		}

		return e.loadStruct(field, envName+"_")
	}

	raw, ok := os.LookupEnv(envName)
	if !ok || raw == "" {
		return nil
	}

	if err := setFromString(field, raw); err != nil {
		return fmt.Errorf("invalid value for %s: %w", envName, err)
	}

	if e.logger != nil {
		e.logger.Debug().Str("env", envName).Msg("Applied environment override")
	}

	return nil
}

// hasPrefix reports whether any variable would populate a nil nested struct.
func (*EnvConfigLoader) hasPrefix(prefix string) bool {
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, prefix) {
			return true
		}
	}

	return false
}

func isStructLike(field reflect.Value) bool {
	if _, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
		return false
	}

	switch field.Kind() {
	case reflect.Struct:
		return true
	case reflect.Ptr:
		return field.Type().Elem().Kind() == reflect.Struct
	default:
		return false
	}
}

func setFromString(field reflect.Value, raw string) error {
	if u, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
		return u.UnmarshalText([]byte(raw))
	}

	//nolint:exhaustive // remaining kinds are decoded as JSON
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}

		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}

		field.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}

		field.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return err
		}

		field.SetFloat(f)
	case reflect.Ptr:
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}

		return setFromString(field.Elem(), raw)
	case reflect.Slice:
		// Command lines and package lists are comma-separated.
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(raw, ",")
			slice := reflect.MakeSlice(field.Type(), 0, len(parts))

			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					slice = reflect.Append(slice, reflect.ValueOf(p).Convert(field.Type().Elem()))
				}
			}

			field.Set(slice)

			return nil
		}

		return json.Unmarshal([]byte(raw), field.Addr().Interface())
	case reflect.Map:
		return json.Unmarshal([]byte(raw), field.Addr().Interface())
	default:
		return fmt.Errorf("%w: %s", errUnsupportedEnvType, field.Kind())
	}

	return nil
}

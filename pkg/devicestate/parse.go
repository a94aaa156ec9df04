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

package devicestate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrNoDevice is returned when the listing command reports no camera.
	ErrNoDevice = errors.New("no camera detected")
	// ErrEmptyProperties is returned when the property dump yields no usable values.
	ErrEmptyProperties = errors.New("camera reported no properties")

	serialRe   = regexp.MustCompile(`Serial:\s*(\d+)`)
	noDeviceRe = regexp.MustCompile(`(?i)\bno (?:camera|device)s? (?:found|detected|available)\b`)
)

// ParseError reports tool output that did not have the expected shape.
type ParseError struct {
	What   string
	Output string
	Err    error
}

func (e *ParseError) Error() string {
	msg := "parse " + e.What
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	if out := strings.TrimSpace(e.Output); out != "" {
		if len(out) > 512 {
			out = out[:512] + "..."
		}

		msg += fmt.Sprintf(" (output: %q)", out)
	}

	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseSerial returns the serial of the first device in the listing output.
func ParseSerial(output string) (uint64, error) {
	if strings.TrimSpace(output) == "" || noDeviceRe.MatchString(output) {
		return 0, ErrNoDevice
	}

	m := serialRe.FindStringSubmatch(output)
	if m == nil {
		return 0, &ParseError{What: "device serial", Output: output, Err: errors.New("no Serial: <digits> field")}
	}

	serial, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, &ParseError{What: "device serial", Output: output, Err: err}
	}

	return serial, nil
}

// ParseProperties decodes the property dump. The object may be flat or wrapped
// in a "properties" key; numbers keep their textual precision and non-scalar
// values are dropped.
func ParseProperties(output []byte) (map[string]interface{}, error) {
	start := bytes.IndexByte(output, '{')
	end := bytes.LastIndexByte(output, '}')

	if start < 0 || end < start {
		if len(bytes.TrimSpace(output)) == 0 {
			return nil, ErrEmptyProperties
		}

		return nil, &ParseError{What: "camera properties", Output: string(output), Err: errors.New("no JSON object found")}
	}

	dec := json.NewDecoder(bytes.NewReader(output[start : end+1]))
	dec.UseNumber()

	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, &ParseError{What: "camera properties", Output: string(output), Err: err}
	}

	if inner, ok := doc["properties"].(map[string]interface{}); ok {
		doc = inner
	}

	props := make(map[string]interface{}, len(doc))

	for k, v := range doc {
		switch v.(type) {
		case string, bool, json.Number:
			props[k] = v
		}
	}

	if len(props) == 0 {
		return nil, ErrEmptyProperties
	}

	return props, nil
}

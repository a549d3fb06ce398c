// Copyright 2024 Anapaya Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config defines the contract of the TOML configuration sections.
//
// Every section implements Config. InitDefaults fills in the fields that were
// not set in the file, Validate checks the result, and Sample writes a
// commented example of the section. The sample of each section is parsed in
// the unit tests, so it stays in sync with the defaults.
//
// Sample may panic if writing to dst fails.
package config

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/netfab/switchd/pkg/private/serrors"
)

// ID is the sample context key of the element ID.
const ID = "id"

// Config is a configuration section.
type Config interface {
	Sampler
	Validator
	Defaulter
}

// Validator checks a section and all its subsections.
type Validator interface {
	Validate() error
}

// Defaulter sets the defaults of all unset fields of a section and its
// subsections.
type Defaulter interface {
	InitDefaults()
}

// Sampler writes a commented sample of a section.
type Sampler interface {
	Sample(dst io.Writer, path Path, ctx CtxMap)
}

// TableSampler is a Sampler whose sample is a TOML table named ConfigName.
type TableSampler interface {
	Sampler
	ConfigName() string
}

// Path is the name of a TOML table, split in its dotted parts.
type Path []string

// Extend returns a copy of p with s appended.
func (p Path) Extend(s string) Path {
	return append(append(Path(nil), p...), s)
}

// CtxMap carries values, such as the element ID, into samples.
type CtxMap map[string]string

// NoValidator can be embedded by sections without validation.
type NoValidator struct{}

func (NoValidator) Validate() error { return nil }

// NoDefaulter can be embedded by sections without defaults.
type NoDefaulter struct{}

func (NoDefaulter) InitDefaults() {}

// ValidateAll validates all validators and returns the first error.
func ValidateAll(validators ...Validator) error {
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return serrors.Wrap("invalid config", err, "section", fmt.Sprintf("%T", v))
		}
	}
	return nil
}

// InitAll initializes all defaulters.
func InitAll(defaulters ...Defaulter) {
	for _, d := range defaulters {
		d.InitDefaults()
	}
}

// LoadFile decodes the TOML file into cfg. Unknown keys are an error.
func LoadFile(file string, cfg any) error {
	raw, err := os.ReadFile(file)
	if err != nil {
		return serrors.Wrap("reading config file", err, "file", file)
	}
	dec := toml.NewDecoder(bytes.NewReader(raw)).DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return serrors.Wrap("decoding config file", err, "file", file)
	}
	return nil
}

// WriteSample writes the samples in order to dst. The samples of table
// samplers are written below their table header and indented.
func WriteSample(dst io.Writer, path Path, ctx CtxMap, samplers ...Sampler) {
	for _, s := range samplers {
		ts, ok := s.(TableSampler)
		if !ok {
			s.Sample(dst, path, ctx)
			continue
		}
		p := path.Extend(ts.ConfigName())
		WriteString(dst, "\n["+strings.Join(p, ".")+"]\n")
		var buf bytes.Buffer
		ts.Sample(&buf, p, ctx)
		scanner := bufio.NewScanner(&buf)
		for scanner.Scan() {
			line := scanner.Text()
			if line != "" {
				line = "    " + line
			}
			WriteString(dst, line+"\n")
		}
	}
}

// WriteString writes s to dst. It panics if the write fails.
func WriteString(dst io.Writer, s string) {
	if _, err := io.WriteString(dst, s); err != nil {
		panic(fmt.Sprintf("writing sample: %s", err))
	}
}

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

package util

import (
	"regexp"
	"strconv"
	"time"

	"github.com/netfab/switchd/pkg/private/serrors"
)

const (
	day  = 24 * time.Hour
	week = 7 * day
	year = 365 * day
)

// units are ordered from the largest to the smallest.
var units = []struct {
	name string
	dur  time.Duration
}{
	{"y", year},
	{"w", week},
	{"d", day},
	{"h", time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
	{"ms", time.Millisecond},
	{"us", time.Microsecond},
	{"ns", time.Nanosecond},
}

var durationRe = regexp.MustCompile(`^(-?[0-9]+)([a-zµ]+)$`)

// ParseDuration parses a duration consisting of an integer and a single unit,
// e.g., "90s" or "2d". Supported units are y, w, d, h, m, s, ms, us (or µs)
// and ns.
func ParseDuration(s string) (time.Duration, error) {
	matches := durationRe.FindStringSubmatch(s)
	if len(matches) != 3 {
		return 0, serrors.New("invalid duration", "duration", s)
	}
	n, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, serrors.Wrap("parsing duration value", err, "duration", s)
	}
	unit := matches[2]
	if unit == "µs" {
		unit = "us"
	}
	for _, u := range units {
		if u.name == unit {
			return time.Duration(n) * u.dur, nil
		}
	}
	return 0, serrors.New("unknown duration unit", "duration", s, "unit", matches[2])
}

// FmtDuration formats d with the largest unit that represents it exactly.
func FmtDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	for _, u := range units {
		if d%u.dur == 0 {
			return strconv.FormatInt(int64(d/u.dur), 10) + u.name
		}
	}
	return strconv.FormatInt(int64(d), 10) + "ns"
}

// DurWrap is a duration that is read from and written to configuration files
// in the format of ParseDuration and FmtDuration.
type DurWrap struct {
	time.Duration
}

func (d *DurWrap) UnmarshalText(text []byte) error {
	dur, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

func (d DurWrap) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d DurWrap) String() string {
	return FmtDuration(d.Duration)
}

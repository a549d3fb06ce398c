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

package util_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfab/switchd/pkg/private/util"
)

func TestParseDuration(t *testing.T) {
	testCases := map[string]struct {
		Input     string
		Expected  time.Duration
		AssertErr assert.ErrorAssertionFunc
	}{
		"seconds":      {Input: "90s", Expected: 90 * time.Second, AssertErr: assert.NoError},
		"days":         {Input: "2d", Expected: 48 * time.Hour, AssertErr: assert.NoError},
		"weeks":        {Input: "1w", Expected: 7 * 24 * time.Hour, AssertErr: assert.NoError},
		"micro":        {Input: "5µs", Expected: 5 * time.Microsecond, AssertErr: assert.NoError},
		"negative":     {Input: "-3m", Expected: -3 * time.Minute, AssertErr: assert.NoError},
		"no unit":      {Input: "10", AssertErr: assert.Error},
		"unknown unit": {Input: "10x", AssertErr: assert.Error},
		"compound":     {Input: "1h30m", AssertErr: assert.Error},
		"empty":        {Input: "", AssertErr: assert.Error},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			d, err := util.ParseDuration(tc.Input)
			tc.AssertErr(t, err)
			assert.Equal(t, tc.Expected, d)
		})
	}
}

func TestFmtDuration(t *testing.T) {
	assert.Equal(t, "0s", util.FmtDuration(0))
	assert.Equal(t, "90s", util.FmtDuration(90*time.Second))
	assert.Equal(t, "2h", util.FmtDuration(2*time.Hour))
	assert.Equal(t, "1500ms", util.FmtDuration(1500*time.Millisecond))
	assert.Equal(t, "1w", util.FmtDuration(7*24*time.Hour))
}

func TestDurWrap(t *testing.T) {
	var d util.DurWrap
	require.NoError(t, d.UnmarshalText([]byte("5m")))
	assert.Equal(t, 5*time.Minute, d.Duration)
	raw, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "5m", string(raw))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

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

package db_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/netfab/switchd/private/storage/db"
)

func TestErrors(t *testing.T) {
	cause := errors.New("disk I/O error")
	tests := map[string]struct {
		err   error
		class error
		msg   string
	}{
		"input": {
			err:   db.NewInputDataError("encoding", nil),
			class: db.ErrInvalidInputData,
			msg:   "db: input data invalid {detailMsg=encoding}",
		},
		"data": {
			err:   db.NewDataError("decoding", nil, "generation", 3),
			class: db.ErrDataInvalid,
			msg:   "db: db data invalid {detailMsg=decoding; generation=3}",
		},
		"read": {
			err:   db.NewReadError("query", cause),
			class: db.ErrReadFailed,
			msg:   "db: read failed {detailMsg=query}: disk I/O error",
		},
		"write": {
			err:   db.NewWriteError("insert", cause),
			class: db.ErrWriteFailed,
			msg:   "db: write failed {detailMsg=insert}: disk I/O error",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, tc.err, tc.class)
			assert.Equal(t, tc.msg, tc.err.Error())
			if errors.Is(tc.err, cause) {
				assert.Contains(t, tc.msg, cause.Error())
			}
		})
	}
}

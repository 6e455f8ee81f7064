// Copyright (c) 2026 Lettervault Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package stream bounds and materializes an inbound raw email stream.
// Anything larger than the configured ceiling is abandoned immediately
// rather than buffered — oversized input is the one failure in the import
// pipeline that actively cancels its source.
package stream

import (
	"bytes"
	"fmt"
	"io"
)

// DefaultMaxBytes is the hard ceiling for one raw inbound email.
const DefaultMaxBytes = 25 << 20 // 25 MiB

// OversizedError reports that a raw email exceeded the size ceiling.
type OversizedError struct {
	Limit int64
}

func (e *OversizedError) Error() string {
	return fmt.Sprintf("email exceeds size limit of %d bytes", e.Limit)
}

// ReadAll accumulates r into memory, failing with *OversizedError the moment
// the accumulated size exceeds max. If r is an io.Closer it is closed on
// overflow so the transport can stop sending.
func ReadAll(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		max = DefaultMaxBytes
	}

	var buf bytes.Buffer
	chunk := make([]byte, 32*1024)

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			if int64(buf.Len())+int64(n) > max {
				if c, ok := r.(io.Closer); ok {
					c.Close()
				}
				return nil, &OversizedError{Limit: max}
			}
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("read email stream: %w", err)
		}
	}
}

// Copyright 2025 Poiesic Systems
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


package ai

import (
	"errors"
	"fmt"
)

// ErrProvider marks failures of the embedding service. Callers surface
// them immediately rather than retrying inside a request.
var ErrProvider = errors.New("embedding provider failed")

// ProviderError records which provider operation failed.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrProvider, e.Op, e.Err)
}

// Unwrap exposes both ErrProvider and the underlying cause.
func (e *ProviderError) Unwrap() []error {
	return []error{ErrProvider, e.Err}
}

// NewProviderError wraps err as a provider failure of op. A nil err stays nil.
func NewProviderError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Op: op, Err: err}
}

// Copyright 2025 Tom Barlow
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

package orcherrors

import "errors"

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target's type.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsTransport reports whether err is a transport timeout or transport
// failure — the two kinds the orchestrator treats identically for a step
// command (counts the step as failed with the transport error as its message).
func IsTransport(err error) bool {
	var timeout *TransportTimeoutError
	var failure *TransportFailureError
	return errors.As(err, &timeout) || errors.As(err, &failure)
}

/*
	Copyright NetFoundry Inc.

	Licensed under the Apache License, Version 2.0 (the "License");
	you may not use this file except in compliance with the License.
	You may obtain a copy of the License at

	https://www.apache.org/licenses/LICENSE-2.0

	Unless required by applicable law or agreed to in writing, software
	distributed under the License is distributed on an "AS IS" BASIS,
	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
	See the License for the specific language governing permissions and
	limitations under the License.
*/

package xapp

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// HTTPError is a handled, status-carrying condition. Returned from dispatch it is converted to a Response by the
// Application and is not seen as a fault by Exit hooks.
type HTTPError struct {
	Code        int
	Description string
	Header      http.Header

	// Response, if set, is used as-is instead of the generated error page.
	Response *Response
}

// NewHTTPError creates an HTTPError for code with an optional description.
func NewHTTPError(code int, description string) *HTTPError {
	return &HTTPError{
		Code:        code,
		Description: description,
		Header:      http.Header{},
	}
}

func NotFound() *HTTPError {
	return NewHTTPError(http.StatusNotFound, "The requested URL was not found on the server.")
}

func BadRequest(description string) *HTTPError {
	return NewHTTPError(http.StatusBadRequest, description)
}

func Unauthorized() *HTTPError {
	return NewHTTPError(http.StatusUnauthorized, "The server could not verify that you are authorized to access the URL requested.")
}

func Forbidden() *HTTPError {
	return NewHTTPError(http.StatusForbidden, "You don't have the permission to access the requested resource.")
}

func TooManyRequests() *HTTPError {
	return NewHTTPError(http.StatusTooManyRequests, "This user has exceeded an allotted request count.")
}

func InternalServerError() *HTTPError {
	return NewHTTPError(http.StatusInternalServerError, "The server encountered an internal error and was unable to complete your request.")
}

// MethodNotAllowed creates a 405 carrying an Allow header listing allowed.
func MethodNotAllowed(allowed ...string) *HTTPError {
	err := NewHTTPError(http.StatusMethodNotAllowed, "The method is not allowed for the requested URL.")
	if len(allowed) > 0 {
		err.Header.Set("Allow", strings.Join(allowed, ", "))
	}
	return err
}

// Name returns the standard status text for the code.
func (err *HTTPError) Name() string {
	return http.StatusText(err.Code)
}

func (err *HTTPError) Error() string {
	if err.Description == "" {
		return fmt.Sprintf("%d %s", err.Code, err.Name())
	}
	return fmt.Sprintf("%d %s: %s", err.Code, err.Name(), err.Description)
}

// ToResponse returns the Response for this error: a copy of Response when set, a small text/plain page otherwise.
// Header entries are merged into the result.
func (err *HTTPError) ToResponse() *Response {
	var response *Response
	if err.Response != nil {
		response = err.Response.clone()
	} else {
		body := fmt.Sprintf("%d %s\n", err.Code, err.Name())
		if err.Description != "" {
			body += "\n" + err.Description + "\n"
		}
		response = NewResponse([]byte(body), WithMimetype("text/plain; charset=utf-8"))
		response.setStatusCode(err.Code)
	}

	for key, values := range err.Header {
		for _, value := range values {
			response.Header.Add(key, value)
		}
	}
	return response
}

// AsHTTPError finds the first HTTPError in the chain of err.
func AsHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}

// PanicError is the fault recorded when dispatch panics, so Exit hooks can react to it like any other fault.
type PanicError struct {
	Value interface{}
	Stack string
}

func (err *PanicError) Error() string {
	return fmt.Sprintf("panic during dispatch: %v", err.Value)
}

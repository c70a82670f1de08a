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
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const DefaultMimetype = "text/plain; charset=utf-8"

// Response is the outbound representation produced by dispatch. The body is kept as a list of chunks; Data joins
// them.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header

	// DirectPassthrough writes chunks as they are, flushing after each one, instead of writing one buffered body with
	// a Content-Length.
	DirectPassthrough bool

	chunks [][]byte
}

// ResponseOption changes one aspect of a Response.
type ResponseOption func(response *Response) error

// NewResponse creates a 200 response with body and applies opts. Invalid options are ignored; use Using when the
// caller needs to see them.
func NewResponse(body []byte, opts ...ResponseOption) *Response {
	response := &Response{
		Header: http.Header{},
	}
	response.setStatusCode(http.StatusOK)
	if body != nil {
		response.chunks = [][]byte{body}
	}

	for _, opt := range opts {
		_ = opt(response)
	}
	return response
}

// Using returns a copy of response with exactly the given overrides applied. Fields not named by an option keep
// their prior values; headers are merged.
func (response *Response) Using(opts ...ResponseOption) (*Response, error) {
	result := response.clone()
	for _, opt := range opts {
		if err := opt(result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Data returns the whole body.
func (response *Response) Data() []byte {
	return bytes.Join(response.chunks, nil)
}

// Chunks returns the body chunks.
func (response *Response) Chunks() [][]byte {
	return append([][]byte(nil), response.chunks...)
}

// SetData replaces the body.
func (response *Response) SetData(data []byte) {
	response.chunks = [][]byte{data}
}

// Mimetype returns the Content-Type header.
func (response *Response) Mimetype() string {
	return response.Header.Get("Content-Type")
}

// Write sends the response to writer.
func (response *Response) Write(writer http.ResponseWriter) error {
	header := writer.Header()
	for key, values := range response.Header {
		header[key] = append([]string(nil), values...)
	}

	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", DefaultMimetype)
	}

	if !response.DirectPassthrough && header.Get("Content-Length") == "" {
		length := 0
		for _, chunk := range response.chunks {
			length += len(chunk)
		}
		header.Set("Content-Length", strconv.Itoa(length))
	}

	writer.WriteHeader(response.StatusCode)

	flusher, canFlush := writer.(http.Flusher)
	for _, chunk := range response.chunks {
		if _, err := writer.Write(chunk); err != nil {
			return errors.Wrap(err, "error writing response body")
		}
		if response.DirectPassthrough && canFlush {
			flusher.Flush()
		}
	}
	return nil
}

func (response *Response) clone() *Response {
	result := *response
	result.Header = response.Header.Clone()
	if result.Header == nil {
		result.Header = http.Header{}
	}
	result.chunks = append([][]byte(nil), response.chunks...)
	return &result
}

func (response *Response) setStatusCode(code int) {
	response.StatusCode = code
	response.Status = fmt.Sprintf("%d %s", code, strings.ToUpper(http.StatusText(code)))
}

// WithStatus sets the numeric status code.
func WithStatus(code int) ResponseOption {
	return func(response *Response) error {
		if code < 100 || code > 999 {
			return errors.Errorf("invalid status code [%d]", code)
		}
		response.setStatusCode(code)
		return nil
	}
}

// WithStatusText sets the status from a status line such as "404 NOT FOUND".
func WithStatusText(status string) ResponseOption {
	return func(response *Response) error {
		status = strings.TrimSpace(status)
		codeStr := status
		if idx := strings.IndexByte(status, ' '); idx >= 0 {
			codeStr = status[:idx]
		}

		code, err := strconv.Atoi(codeStr)
		if err != nil {
			return errors.Errorf("invalid status [%s], must start with a numeric code", status)
		}

		if err := WithStatus(code)(response); err != nil {
			return err
		}
		if codeStr != status {
			response.Status = status
		}
		return nil
	}
}

// WithHeaders merges headers, replacing values of keys present in headers only.
func WithHeaders(headers map[string]string) ResponseOption {
	return func(response *Response) error {
		for key, value := range headers {
			response.Header.Set(key, value)
		}
		return nil
	}
}

// WithMimetype sets the Content-Type header.
func WithMimetype(mimetype string) ResponseOption {
	return func(response *Response) error {
		if mimetype != "" {
			response.Header.Set("Content-Type", mimetype)
		}
		return nil
	}
}

// WithData replaces the body.
func WithData(data []byte) ResponseOption {
	return func(response *Response) error {
		response.SetData(data)
		return nil
	}
}

// WithString replaces the body with s.
func WithString(s string) ResponseOption {
	return WithData([]byte(s))
}

// WithChunks replaces the body with a list of chunks.
func WithChunks(chunks [][]byte) ResponseOption {
	return func(response *Response) error {
		response.chunks = append([][]byte(nil), chunks...)
		return nil
	}
}

func WithDirectPassthrough(passthrough bool) ResponseOption {
	return func(response *Response) error {
		response.DirectPassthrough = passthrough
		return nil
	}
}

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

package serve

import (
	"bufio"
	"net"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/michaelquigley/pfxlog"
	"github.com/pkg/errors"
)

// NewCompressionHandler wraps handler to brotli-compress responses for clients accepting the br encoding.
func NewCompressionHandler(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Add("Vary", "Accept-Encoding")

		if !acceptsBrotli(request.Header.Get("Accept-Encoding")) {
			handler.ServeHTTP(writer, request)
			return
		}

		compressWriter := &compressionWriter{ResponseWriter: writer}
		defer func() {
			if err := compressWriter.Close(); err != nil {
				pfxlog.Logger().WithError(err).Debug("could not finish compressed response")
			}
		}()

		handler.ServeHTTP(compressWriter, request)
	})
}

func acceptsBrotli(acceptEncoding string) bool {
	for _, part := range strings.Split(acceptEncoding, ",") {
		fields := strings.Split(part, ";")
		if strings.TrimSpace(fields[0]) != "br" {
			continue
		}
		for _, param := range fields[1:] {
			param = strings.ReplaceAll(param, " ", "")
			if param == "q=0" || param == "q=0.0" || param == "q=0.00" || param == "q=0.000" {
				return false
			}
		}
		return true
	}
	return false
}

// compressionWriter decides at WriteHeader whether the body is compressed. Bodiless statuses and bodies already
// carrying a Content-Encoding pass through untouched.
type compressionWriter struct {
	http.ResponseWriter
	brotliWriter *brotli.Writer
	compress     bool
	wroteHeader  bool
}

func (w *compressionWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true

	header := w.Header()
	w.compress = code >= http.StatusOK &&
		code != http.StatusNoContent &&
		code != http.StatusNotModified &&
		header.Get("Content-Encoding") == ""

	if w.compress {
		header.Del("Content-Length")
		header.Set("Content-Encoding", "br")
	}

	w.ResponseWriter.WriteHeader(code)
}

func (w *compressionWriter) Write(data []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}

	if !w.compress {
		return w.ResponseWriter.Write(data)
	}

	if w.brotliWriter == nil {
		w.brotliWriter = brotli.NewWriterLevel(w.ResponseWriter, brotli.DefaultCompression)
	}
	return w.brotliWriter.Write(data)
}

func (w *compressionWriter) Flush() {
	if w.brotliWriter != nil {
		if err := w.brotliWriter.Flush(); err != nil {
			pfxlog.Logger().WithError(err).Debug("could not flush compressed response")
		}
	}
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *compressionWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, errors.New("underlying response writer does not support hijacking")
}

func (w *compressionWriter) Close() error {
	if w.brotliWriter == nil {
		return nil
	}
	return w.brotliWriter.Close()
}

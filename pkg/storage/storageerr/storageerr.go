// Copyright 2018-2024 CERN
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
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

// Package storageerr carries the storage system's own failure kinds: the
// ones that originate inside background registration itself (a panicking
// worker, a closed inflight semaphore, a failed processing step) rather than
// from caller-supplied input. They sit alongside pkg/errtypes rather than
// replacing it: HandleNotFound, NoDefaultImageAvailable, MissingExtension and
// InvalidInput already cover the input-validation side and stay there.
package storageerr

// ProcessingError names a specific background-registration failure mode.
// The background task never retries any of these: the failure surfaces
// verbatim to whichever caller eventually calls Take.
type ProcessingError string

const (
	// BackgroundTaskPanic means the background registration goroutine
	// recovered from a panic instead of completing normally.
	BackgroundTaskPanic ProcessingError = "background task panicked"
	// SemaphoreClosed means an inflight or transcode permit could not be
	// acquired because the caller's context ended while waiting for one.
	SemaphoreClosed ProcessingError = "inflight semaphore closed"
	// ReadTempFile means the anonymous temp file backing a registration
	// could not be read back.
	ReadTempFile ProcessingError = "failed to read temp file"
	// UploadConverted means writing the media worker's converted output
	// to the backend failed.
	UploadConverted ProcessingError = "failed to upload converted file"
	// UploadTemp means writing an intermediate temp blob to the backend
	// failed.
	UploadTemp ProcessingError = "failed to upload temp file"
	// OpenTempFileForUpload means the anonymous temp file allocator
	// could not hand back a file to stage an upload through.
	OpenTempFileForUpload ProcessingError = "failed to open temp file for upload"
	// ImageConversion means the image conversion step itself failed.
	ImageConversion ProcessingError = "image conversion failed"
	// ImageWorkerJoin means the worker goroutine running image
	// conversion could not be joined.
	ImageWorkerJoin ProcessingError = "image worker join failed"
	// ReadImageDimensions means the converted image's dimensions could
	// not be read back.
	ReadImageDimensions ProcessingError = "failed to read image dimensions"
	// DimensionWorkerJoin means the worker goroutine reading dimensions
	// could not be joined.
	DimensionWorkerJoin ProcessingError = "dimension worker join failed"
	// SplitPdf means splitting an uploaded PDF into page images failed.
	SplitPdf ProcessingError = "failed to split pdf"
	// PdfWorkerJoin means the worker goroutine splitting a PDF could not
	// be joined.
	PdfWorkerJoin ProcessingError = "pdf worker join failed"
)

// Processing is the error returned for any ProcessingError. It maps to an
// internal-error response at the HTTP boundary, same as Io and TempFile: the
// caller gets the abstract kind name, nothing more.
type Processing struct {
	Cause ProcessingError
	Err   error
}

func (e Processing) Error() string {
	if e.Err != nil {
		return "error: processing failed (" + string(e.Cause) + "): " + e.Err.Error()
	}
	return "error: processing failed: " + string(e.Cause)
}

// Unwrap exposes the underlying error, if any, for errors.Is/errors.As.
func (e Processing) Unwrap() error { return e.Err }

// IsProcessing implements the IsProcessing interface.
func (e Processing) IsProcessing() {}

// IsProcessing is the interface to implement to specify that a background
// registration step failed for one of the named ProcessingError reasons.
type IsProcessing interface {
	IsProcessing()
}

// Io wraps a failure reported by a storage backend itself (disk, S3, ...)
// during background registration, as distinct from a failure in the
// registration logic.
type Io struct {
	Err error
}

func (e Io) Error() string { return "error: storage backend failed: " + e.Err.Error() }

// Unwrap exposes the underlying error for errors.Is/errors.As.
func (e Io) Unwrap() error { return e.Err }

// IsIo implements the IsIo interface.
func (e Io) IsIo() {}

// IsIo is the interface to implement to specify that a storage backend
// itself failed.
type IsIo interface {
	IsIo()
}

// TempFile wraps a failure reported by the anonymous temp-file allocator.
type TempFile struct {
	Err error
}

func (e TempFile) Error() string { return "error: temp file allocation failed: " + e.Err.Error() }

// Unwrap exposes the underlying error for errors.Is/errors.As.
func (e TempFile) Unwrap() error { return e.Err }

// IsTempFile implements the IsTempFile interface.
func (e TempFile) IsTempFile() {}

// IsTempFile is the interface to implement to specify that the temp-file
// allocator itself failed.
type IsTempFile interface {
	IsTempFile()
}

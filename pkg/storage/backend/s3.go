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

package backend

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/cs3org/mangastore/pkg/errtypes"
	"github.com/cs3org/mangastore/pkg/mime"
)

// UploadACL selects the canned ACL applied to objects written through S3Backend.
type UploadACL int

const (
	// UploadACLInheritBucket applies no per-object ACL, inheriting the
	// bucket's own policy.
	UploadACLInheritBucket UploadACL = iota
	// UploadACLPrivate marks objects private regardless of bucket policy.
	UploadACLPrivate
	// UploadACLPublicRead marks objects publicly readable.
	UploadACLPublicRead
)

// S3Options configures an S3Backend.
type S3Options struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	ForcePathStyle  bool
	UseSSL          bool
	UploadACL       UploadACL
}

// S3Backend is a Backend over an S3-compatible object store.
type S3Backend struct {
	client *minio.Client
	opts   S3Options
}

// NewS3Backend validates opts and constructs an S3Backend. Mirrors the
// original's construction-time validation: bucket and region must be
// non-empty, and AccessKeyID/SecretAccessKey must be supplied together or
// not at all (a lone access key with no secret, or vice versa, is rejected).
func NewS3Backend(opts S3Options) (*S3Backend, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errtypes.InvalidInput("s3 backend: bucket must not be empty")
	}
	if strings.TrimSpace(opts.Region) == "" {
		return nil, errtypes.InvalidInput("s3 backend: region must not be empty")
	}
	hasKey := opts.AccessKeyID != ""
	hasSecret := opts.SecretAccessKey != ""
	if hasKey != hasSecret {
		return nil, errtypes.InvalidInput("s3 backend: access_key_id and secret_access_key must be set together")
	}

	var creds *credentials.Credentials
	if hasKey {
		creds = credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken)
	} else {
		creds = credentials.NewEnvAWS()
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:        creds,
		Secure:       opts.UseSSL,
		Region:       opts.Region,
		BucketLookup: lookupStyle(opts.ForcePathStyle),
	})
	if err != nil {
		return nil, err
	}
	return &S3Backend{client: client, opts: opts}, nil
}

func lookupStyle(forcePathStyle bool) minio.BucketLookupType {
	if forcePathStyle {
		return minio.BucketLookupPath
	}
	return minio.BucketLookupAuto
}

// Get implements Reader.
func (b *S3Backend) Get(ctx context.Context, key string, opts GetOptions) (*Object, error) {
	if opts.ContentLengthOnly {
		return nil, errtypes.NotSupported("S3Backend does not carry a content-length sidecar")
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}
	obj, err := b.client.GetObject(ctx, b.opts.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s3Err(key, err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, s3Err(key, err)
	}
	return &Object{
		Stream:        obj,
		ContentLength: info.Size,
		ContentType:   info.ContentType,
		ETag:          info.ETag,
		LastModified:  info.LastModified,
	}, nil
}

// Write implements Writer. The original buffers the whole stream before a
// single PutObject call (S3's multipart API isn't worth the complexity for
// manga-sized blobs); this keeps the same approach.
func (b *S3Backend) Write(ctx context.Context, key string, r io.Reader) error {
	if err := validateKey(key); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	_, err = b.client.PutObject(ctx, b.opts.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mime.Detect(false, key),
		UserMetadata: map[string]string{
			"x-amz-acl": aclHeader(b.opts.UploadACL),
		},
	})
	return err
}

func aclHeader(acl UploadACL) string {
	switch acl {
	case UploadACLPrivate:
		return "private"
	case UploadACLPublicRead:
		return "public-read"
	default:
		return ""
	}
}

// Rename implements Writer. S3 has no native rename: copy then delete,
// exactly as the original does.
func (b *S3Backend) Rename(ctx context.Context, oldKey, newKey string) error {
	if err := validateKey(oldKey); err != nil {
		return err
	}
	if err := validateKey(newKey); err != nil {
		return err
	}
	src := minio.CopySrcOptions{Bucket: b.opts.Bucket, Object: oldKey}
	dst := minio.CopyDestOptions{Bucket: b.opts.Bucket, Object: newKey}
	if _, err := b.client.CopyObject(ctx, dst, src); err != nil {
		return s3Err(oldKey, err)
	}
	return b.Delete(ctx, oldKey)
}

// Delete implements Writer.
func (b *S3Backend) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := b.client.RemoveObject(ctx, b.opts.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return s3Err(key, err)
	}
	return nil
}

// s3Err classifies minio's "not found"-shaped errors into errtypes.NotFound,
// the way the original's s3_err helper maps NoSuchKey/NotFound substrings.
func s3Err(key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
		return errtypes.NotFound(key)
	}
	return err
}

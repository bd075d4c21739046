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

// Package builder turns a logical placement (this manga's cover, that
// chapter's third page, a user's banner) into the storage key grammar the
// backends actually store under, rejecting any caller-supplied id segment
// that could escape its intended directory.
package builder

import (
	"fmt"
	"strings"

	"github.com/cs3org/mangastore/pkg/errtypes"
)

// FileBuilder produces the final storage key for one logical file, once its
// real extension (as decided by the media worker) is known.
type FileBuilder interface {
	BuildKey(ext string) (string, error)
}

// segment validates a single caller-supplied path component: non-empty, no
// path separators, no "." or ".." — the same rule DiskBackend and S3Backend
// apply to full keys, applied here per-id so a bad id is rejected at build
// time rather than surfacing later as a storage-backend error.
func segment(name, value string) (string, error) {
	if value == "" {
		return "", errtypes.InvalidInput(fmt.Sprintf("%s must not be empty", name))
	}
	if strings.ContainsAny(value, "/\\") {
		return "", errtypes.InvalidInput(fmt.Sprintf("%s must not contain a path separator: %q", name, value))
	}
	if value == "." || value == ".." {
		return "", errtypes.InvalidInput(fmt.Sprintf("%s must not be %q", name, value))
	}
	return value, nil
}

func joinKey(parts ...string) string {
	return strings.Join(parts, "/")
}

// withExt appends ".ext" unless ext is empty, matching the documented
// "[.<ext>]" optional-extension key grammar (a sniffed-but-unrecognized
// upload keeps its bare id as the key).
func withExt(key, ext string) string {
	if ext == "" {
		return key
	}
	return key + "." + ext
}

// CoverFileBuilder places a manga's cover image.
type CoverFileBuilder struct {
	MangaID string
}

// NewCoverFileBuilder returns a builder for mangaID's cover.
func NewCoverFileBuilder(mangaID string) (*CoverFileBuilder, error) {
	id, err := segment("manga id", mangaID)
	if err != nil {
		return nil, err
	}
	return &CoverFileBuilder{MangaID: id}, nil
}

// BuildKey implements FileBuilder.
func (b *CoverFileBuilder) BuildKey(ext string) (string, error) {
	return withExt(joinKey("covers", b.MangaID), ext), nil
}

// ArtFileBuilder places one of a manga's promotional art images.
type ArtFileBuilder struct {
	MangaID string
	Index   int
}

// NewArtFileBuilder returns a builder for the index-th art image of mangaID.
func NewArtFileBuilder(mangaID string, index int) (*ArtFileBuilder, error) {
	id, err := segment("manga id", mangaID)
	if err != nil {
		return nil, err
	}
	if index < 0 {
		return nil, errtypes.InvalidInput("art index must not be negative")
	}
	return &ArtFileBuilder{MangaID: id, Index: index}, nil
}

// BuildKey implements FileBuilder.
func (b *ArtFileBuilder) BuildKey(ext string) (string, error) {
	id := fmt.Sprintf("%s-%d", b.MangaID, b.Index)
	return withExt(joinKey("art", id), ext), nil
}

// MangaPageFileBuilder places a single page image of one chapter version.
type MangaPageFileBuilder struct {
	MangaID   string
	ChapterID string
	Version   int
	PageIndex int
}

// NewMangaPageFileBuilder returns a builder for one page of one chapter version.
func NewMangaPageFileBuilder(mangaID, chapterID string, version, pageIndex int) (*MangaPageFileBuilder, error) {
	mid, err := segment("manga id", mangaID)
	if err != nil {
		return nil, err
	}
	cid, err := segment("chapter id", chapterID)
	if err != nil {
		return nil, err
	}
	if version < 0 || pageIndex < 0 {
		return nil, errtypes.InvalidInput("version and page index must not be negative")
	}
	return &MangaPageFileBuilder{MangaID: mid, ChapterID: cid, Version: version, PageIndex: pageIndex}, nil
}

// BuildKey implements FileBuilder.
func (b *MangaPageFileBuilder) BuildKey(ext string) (string, error) {
	return joinKey(
		"mangas", b.MangaID, b.ChapterID,
		fmt.Sprintf("v%d", b.Version),
		fmt.Sprintf("%04d.%s", b.PageIndex, ext),
	), nil
}

// UserCoverFileBuilder places a user's chosen profile cover image.
type UserCoverFileBuilder struct {
	UserID string
}

// NewUserCoverFileBuilder returns a builder for userID's cover.
func NewUserCoverFileBuilder(userID string) (*UserCoverFileBuilder, error) {
	id, err := segment("user id", userID)
	if err != nil {
		return nil, err
	}
	return &UserCoverFileBuilder{UserID: id}, nil
}

// BuildKey implements FileBuilder.
func (b *UserCoverFileBuilder) BuildKey(ext string) (string, error) {
	return joinKey("users", b.UserID, "cover."+ext), nil
}

// UserBannerBuilder places a user's chosen profile banner image.
type UserBannerBuilder struct {
	UserID string
}

// NewUserBannerBuilder returns a builder for userID's banner.
func NewUserBannerBuilder(userID string) (*UserBannerBuilder, error) {
	id, err := segment("user id", userID)
	if err != nil {
		return nil, err
	}
	return &UserBannerBuilder{UserID: id}, nil
}

// BuildKey implements FileBuilder.
func (b *UserBannerBuilder) BuildKey(ext string) (string, error) {
	return joinKey("users", b.UserID, "banner."+ext), nil
}

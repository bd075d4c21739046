// Copyright 2018-2019 CERN
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

// Package config loads the storage system's configuration from a TOML file,
// with environment variables overriding any file-provided value.
package config

import (
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/cs3org/mangastore/pkg/bytesize"
	"github.com/cs3org/mangastore/pkg/errors"
)

// Encryption holds the at-rest encryption settings for the crypto backend decorator.
type Encryption struct {
	Enabled    bool   `toml:"enabled"`
	SidecarKV  string `toml:"sidecar_kv"`
}

// Config is the storage system's top-level configuration.
type Config struct {
	TranscodeLimit int        `toml:"transcode_limit"`
	TemplatesDir   string     `toml:"templates_dir"`
	StorageRoot    string     `toml:"storage_root"`
	MaxBlobSize    string     `toml:"max_blob_size"`
	Encryption     Encryption `toml:"encryption"`
}

// MaxBlobSizeBytes parses MaxBlobSize ("16MB", "1GiB", ...) into a byte count.
// An empty value means unlimited (returns 0, nil).
func (c Config) MaxBlobSizeBytes() (uint64, error) {
	if strings.TrimSpace(c.MaxBlobSize) == "" {
		return 0, nil
	}
	return bytesize.Parse(c.MaxBlobSize)
}

// defaults is the Config a deployment gets for any key that is entirely
// absent from both the file and the environment.
func defaults() Config {
	return Config{
		TranscodeLimit: 5,
		StorageRoot:    "./data",
	}
}

// Load reads a TOML configuration file at fn and overlays any
// MANGASTORE_-prefixed environment variable (e.g. MANGASTORE_STORAGE_ROOT
// overrides storage_root, MANGASTORE_ENCRYPTION_ENABLED overrides
// encryption.enabled).
func Load(fn string) (*Config, error) {
	cfg := defaults()
	if _, err := toml.DecodeFile(fn, &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to decode config file %q", fn)
	}

	v := viper.New()
	v.SetEnvPrefix("mangastore")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	overlayString(v, "transcode_limit", &cfg.TranscodeLimit)
	overlayStr(v, "templates_dir", &cfg.TemplatesDir)
	overlayStr(v, "storage_root", &cfg.StorageRoot)
	overlayStr(v, "max_blob_size", &cfg.MaxBlobSize)
	overlayBool(v, "encryption.enabled", &cfg.Encryption.Enabled)
	overlayStr(v, "encryption.sidecar_kv", &cfg.Encryption.SidecarKV)

	return &cfg, nil
}

func overlayStr(v *viper.Viper, key string, dst *string) {
	if s := v.GetString(key); s != "" {
		*dst = s
	}
}

func overlayBool(v *viper.Viper, key string, dst *bool) {
	if v.IsSet(strings.ToUpper(strings.ReplaceAll(key, ".", "_"))) {
		*dst = v.GetBool(key)
	}
}

func overlayString(v *viper.Viper, key string, dst *int) {
	if s := v.GetString(key); s != "" {
		if n := v.GetInt(key); n != 0 {
			*dst = n
		}
	}
}

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

// Command mangastored serves the manga-library storage system over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/semaphore"

	"github.com/cs3org/mangastore/internal/httpapi"
	"github.com/cs3org/mangastore/pkg/config"
	"github.com/cs3org/mangastore/pkg/log"
	"github.com/cs3org/mangastore/pkg/storage"
	"github.com/cs3org/mangastore/pkg/storage/backend"
	"github.com/cs3org/mangastore/pkg/storage/container"
	"github.com/cs3org/mangastore/pkg/storage/decorator"
	"github.com/cs3org/mangastore/pkg/storage/media"
)

var logger = log.New("mangastored")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string
	var addr string

	root := &cobra.Command{
		Use:   "mangastored",
		Short: "manga-library storage and search-query service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configFile, addr)
		},
	}
	root.Flags().StringVar(&configFile, "config", "mangastore.toml", "path to the TOML configuration file")
	root.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address")
	return root
}

func serve(configFile, addr string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	be, err := buildBackend(cfg)
	if err != nil {
		return fmt.Errorf("building storage backend: %w", err)
	}

	transcodeSem := semaphore.NewWeighted(int64(max(1, cfg.TranscodeLimit)))
	sys := storage.New(storage.Options{
		Backend:         be,
		MediaWorker:     media.NewDefaultWorker(transcodeSem),
		ContainerWorker: container.NewMagicWorker(),
		TemplatesDir:    cfg.TemplatesDir,
		TranscodeLimit:  cfg.TranscodeLimit,
	})

	srv := httpapi.New(sys, nil)
	router := chi.NewRouter()
	srv.Routes(router)

	logger.Printf(context.Background(), "listening on %s (storage_root=%s, transcode_limit=%d)", addr, cfg.StorageRoot, cfg.TranscodeLimit)
	return http.ListenAndServe(addr, router)
}

// buildBackend composes the decorator stack per the documented canonical
// ordering: ContentLength wraps Crypto wraps the raw backend.
func buildBackend(cfg *config.Config) (backend.Backend, error) {
	var raw backend.Backend = backend.NewDiskBackend(cfg.StorageRoot)

	var wrapped backend.Backend = raw
	if cfg.Encryption.Enabled {
		wrapped = decorator.NewCryptoBackend(wrapped, decorator.NewMemoryCryptoKeyStore())
	}
	wrapped = decorator.NewContentLengthBackend(wrapped, decorator.NewMemoryContentLengthStore())

	return wrapped, nil
}

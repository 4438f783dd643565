// Copyright 2025 Kadir Pekel
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

package filetool

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/swarmhive/swarmd/pkg/toolhost"
	"github.com/swarmhive/swarmd/pkg/toolhost/functiontool"
)

// ListDirectoryArgs defines the parameters for listing a directory.
type ListDirectoryArgs struct {
	Path string `json:"path" jsonschema:"required,description=Directory path relative to an allowed root"`
}

// NewListDirectory builds the list_directory tool definition.
func NewListDirectory(cfg Config) (toolhost.Definition, error) {
	cfg.setDefaults()

	return functiontool.New(
		functiontool.Config{
			Name:        "list_directory",
			Description: "List the entries of a directory, marking which are subdirectories.",
			Class:       toolhost.ClassFilesystemRead,
			Policy: toolhost.Policy{
				Class:        toolhost.ClassFilesystemRead,
				AllowedRoots: cfg.AllowedRoots,
				MaxReadBytes: cfg.MaxReadBytes,
			},
		},
		func(ctx toolhost.Context, args ListDirectoryArgs) (map[string]any, error) {
			resolved, err := resolveUnderRoots(cfg.AllowedRoots, args.Path, true)
			if err != nil {
				return nil, err
			}

			entries, err := os.ReadDir(resolved)
			if err != nil {
				return nil, fmt.Errorf("failed to read directory: %w", err)
			}

			items := make([]map[string]any, 0, len(entries))
			for _, e := range entries {
				info, err := e.Info()
				size := int64(0)
				if err == nil {
					size = info.Size()
				}
				items = append(items, map[string]any{
					"name": e.Name(),
					"dir":  e.IsDir(),
					"size": size,
					"path": filepath.Join(args.Path, e.Name()),
				})
			}

			return map[string]any{
				"path":    args.Path,
				"entries": items,
				"count":   len(items),
			}, nil
		},
	)
}

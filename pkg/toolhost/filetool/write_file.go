// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
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

// WriteFileArgs defines the parameters for writing a file.
type WriteFileArgs struct {
	Path    string `json:"path" jsonschema:"required,description=File path relative to an allowed root"`
	Content string `json:"content" jsonschema:"required,description=Content to write to the file"`
	Backup  bool   `json:"backup,omitempty" jsonschema:"description=Create .bak backup if file exists,default=false"`
}

// NewWriteFile builds the write_file tool definition. Writes land via a
// temp file created alongside the destination, then renamed into place,
// so a crash or policy-cap rejection mid-write never leaves a partially
// written file visible at Path.
func NewWriteFile(cfg Config) (toolhost.Definition, error) {
	cfg.setDefaults()

	return functiontool.NewWithValidation(
		functiontool.Config{
			Name:        "write_file",
			Description: "Create a new file or overwrite an existing file with content. Writes are atomic.",
			Class:       toolhost.ClassFilesystemWrite,
			Policy: toolhost.Policy{
				Class:        toolhost.ClassFilesystemWrite,
				AllowedRoots: cfg.AllowedRoots,
				WriteQuota:   cfg.WriteQuota,
			},
		},
		func(ctx toolhost.Context, args WriteFileArgs) (map[string]any, error) {
			return writeFileImpl(cfg, args)
		},
		func(args WriteFileArgs) error {
			if int64(len(args.Content)) > cfg.WriteQuota {
				return fmt.Errorf("content too large: %d bytes (max: %d): %w", len(args.Content), cfg.WriteQuota, toolhost.ErrPolicyDenied)
			}
			return nil
		},
	)
}

func writeFileImpl(cfg Config, args WriteFileArgs) (map[string]any, error) {
	fullPath, err := resolveUnderRoots(cfg.AllowedRoots, args.Path, false)
	if err != nil {
		return nil, err
	}

	fileExisted := false
	if _, err := os.Stat(fullPath); err == nil {
		fileExisted = true
		if args.Backup {
			if err := copyFile(fullPath, fullPath+".bak"); err != nil {
				return nil, fmt.Errorf("failed to create backup: %w", err)
			}
		}
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.WriteString(args.Content); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return nil, fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		return nil, fmt.Errorf("failed to rename into place: %w", err)
	}

	action := "created"
	if fileExisted {
		action = "overwritten"
	}

	message := fmt.Sprintf("File %s successfully: %s (%d bytes)", action, args.Path, len(args.Content))
	if fileExisted && args.Backup {
		message += fmt.Sprintf("\nBackup created: %s.bak", args.Path)
	}

	return map[string]any{
		"message":      message,
		"path":         args.Path,
		"size":         len(args.Content),
		"backed_up":    fileExisted && args.Backup,
		"file_existed": fileExisted,
		"action":       action,
	}, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

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

// Package filetool implements the filesystem read and write tool classes:
// paths must resolve (including through symlinks) under a configured set
// of allowed roots, and writes land via create-temp-then-rename so a
// crash mid-write never leaves a torn file in place.
package filetool

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/swarmhive/swarmd/pkg/toolhost"
	"github.com/swarmhive/swarmd/pkg/toolhost/functiontool"
)

// ReadFileArgs defines the parameters for reading a file.
type ReadFileArgs struct {
	Path        string `json:"path" jsonschema:"required,description=File path to read (relative to an allowed root)"`
	StartLine   int    `json:"start_line,omitempty" jsonschema:"description=Starting line number (1-indexed),minimum=1"`
	EndLine     int    `json:"end_line,omitempty" jsonschema:"description=Ending line number (inclusive),minimum=1"`
	LineNumbers bool   `json:"line_numbers,omitempty" jsonschema:"description=Include line numbers when a line range is given; without a range line numbers are always included"`
}

// Config configures both the read_file and write_file tools.
type Config struct {
	AllowedRoots []string
	MaxReadBytes int64
	WriteQuota   int64
}

func (c *Config) setDefaults() {
	if c.MaxReadBytes == 0 {
		c.MaxReadBytes = 10 * 1024 * 1024
	}
	if c.WriteQuota == 0 {
		c.WriteQuota = 10 * 1024 * 1024
	}
}

// NewReadFile builds the read_file tool definition.
func NewReadFile(cfg Config) (toolhost.Definition, error) {
	cfg.setDefaults()

	return functiontool.New(
		functiontool.Config{
			Name:        "read_file",
			Description: "Read the contents of a file with optional line numbers and range selection.",
			Class:       toolhost.ClassFilesystemRead,
			Policy: toolhost.Policy{
				Class:        toolhost.ClassFilesystemRead,
				AllowedRoots: cfg.AllowedRoots,
				MaxReadBytes: cfg.MaxReadBytes,
			},
		},
		func(ctx toolhost.Context, args ReadFileArgs) (map[string]any, error) {
			resolved, err := resolveUnderRoots(cfg.AllowedRoots, args.Path, true)
			if err != nil {
				return nil, err
			}
			return readFileImpl(cfg, resolved, args)
		},
	)
}

func readFileImpl(cfg Config, fullPath string, args ReadFileArgs) (map[string]any, error) {
	fileInfo, err := os.Stat(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	if fileInfo.Size() > cfg.MaxReadBytes {
		return nil, fmt.Errorf("file too large: %d bytes (max: %d): %w", fileInfo.Size(), cfg.MaxReadBytes, toolhost.ErrPolicyDenied)
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	lines := strings.Split(string(content), "\n")
	totalLines := len(lines)

	startLine := 1
	if args.StartLine > 0 {
		startLine = args.StartLine
		if startLine > totalLines {
			return nil, fmt.Errorf("start_line (%d) exceeds file length (%d lines)", startLine, totalLines)
		}
	}

	endLine := totalLines
	if args.EndLine > 0 {
		endLine = args.EndLine
		if endLine > totalLines {
			endLine = totalLines
		}
	}

	if startLine > endLine {
		return nil, fmt.Errorf("invalid range: start_line (%d) > end_line (%d)", startLine, endLine)
	}

	showLineNumbers := true
	if !args.LineNumbers && (args.StartLine > 0 || args.EndLine > 0) {
		showLineNumbers = false
	}

	var output strings.Builder
	output.WriteString(fmt.Sprintf("FILE: %s\n", args.Path))
	output.WriteString(fmt.Sprintf("STATS: Total lines: %d", totalLines))
	if startLine != 1 || endLine != totalLines {
		output.WriteString(fmt.Sprintf(" | Showing lines %d-%d", startLine, endLine))
	}
	output.WriteString("\n" + strings.Repeat("-", 60) + "\n")

	for i := startLine - 1; i < endLine && i < len(lines); i++ {
		if showLineNumbers {
			output.WriteString(fmt.Sprintf("%6d| %s\n", i+1, lines[i]))
		} else {
			output.WriteString(fmt.Sprintf("%s\n", lines[i]))
		}
	}
	output.WriteString(strings.Repeat("-", 60))

	return map[string]any{
		"content":      output.String(),
		"path":         args.Path,
		"total_lines":  totalLines,
		"start_line":   startLine,
		"end_line":     endLine,
		"lines_shown":  endLine - startLine + 1,
		"file_size":    fileInfo.Size(),
		"line_numbers": showLineNumbers,
	}, nil
}

// resolveUnderRoots resolves path against each allowed root in order and
// returns the first root it lands under, following symlinks so a crafted
// symlink cannot point outside every root. When mustExist is false, the
// parent directory is resolved instead (the path itself need not exist
// yet, as for write_file).
func resolveUnderRoots(roots []string, path string, mustExist bool) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths not allowed, use a path relative to an allowed root: %w", toolhost.ErrPolicyDenied)
	}
	if strings.Contains(filepath.Clean(path), "..") {
		return "", fmt.Errorf("directory traversal not allowed (..): %w", toolhost.ErrPolicyDenied)
	}

	var lastErr error
	for _, root := range roots {
		absRoot, err := filepath.EvalSymlinks(root)
		if err != nil {
			absRoot, err = filepath.Abs(root)
			if err != nil {
				lastErr = err
				continue
			}
		}

		candidate := filepath.Join(absRoot, path)

		checkPath := candidate
		if !mustExist {
			checkPath = filepath.Dir(candidate)
		}

		resolved, err := filepath.EvalSymlinks(checkPath)
		if err != nil {
			if mustExist {
				lastErr = fmt.Errorf("file does not exist: %s", path)
				continue
			}
			lastErr = fmt.Errorf("invalid path: %w", err)
			continue
		}

		if resolved != absRoot && !strings.HasPrefix(resolved, absRoot+string(filepath.Separator)) {
			lastErr = fmt.Errorf("path escapes allowed root (symlink or traversal): %w", toolhost.ErrPolicyDenied)
			continue
		}

		if !mustExist {
			return filepath.Join(resolved, filepath.Base(candidate)), nil
		}
		return resolved, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no allowed roots configured")
	}
	return "", lastErr
}

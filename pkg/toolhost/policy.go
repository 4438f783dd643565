package toolhost

import (
	"fmt"
	"time"
)

// Policy bounds what a tool handler is permitted to do. Register calls
// Validate and Invoke applies the class timeout; the other bounds are
// checked by each tool's own handler, which wraps ErrPolicyDenied. Fields
// not meaningful for a Class are left zero; Validate checks only the
// fields relevant to its Class.
type Policy struct {
	Class Class

	// Filesystem read/write
	AllowedRoots []string // absolute paths a file op must resolve under
	MaxReadBytes int64
	WriteQuota   int64 // cumulative bytes a single invocation may write

	// Database
	MaxRows   int
	QueryTime time.Duration

	// Code execution
	CommandAllowlist []string
	WallClock        time.Duration
	OutputCap        int

	// Web
	RequestTimeout time.Duration
	ResponseCap    int64

	// Image generation
	MaxImages int
	MaxBytes  int64
}

// Summary renders a short human-readable description of the policy, used
// by List() so operators can audit what a registered tool is permitted.
func (p Policy) Summary() string {
	switch p.Class {
	case ClassFilesystemRead:
		return fmt.Sprintf("read under %v, max %d bytes", p.AllowedRoots, p.MaxReadBytes)
	case ClassFilesystemWrite:
		return fmt.Sprintf("write under %v, quota %d bytes", p.AllowedRoots, p.WriteQuota)
	case ClassDatabase:
		return fmt.Sprintf("max %d rows, %s per query", p.MaxRows, p.QueryTime)
	case ClassCodeExecution:
		return fmt.Sprintf("allowlist %v, %s wall-clock", p.CommandAllowlist, p.WallClock)
	case ClassWeb:
		return fmt.Sprintf("timeout %s, max %d bytes", p.RequestTimeout, p.ResponseCap)
	case ClassKnowledge:
		return "delegates to RAG store"
	case ClassImageGeneration:
		return fmt.Sprintf("max %d images, %d bytes each", p.MaxImages, p.MaxBytes)
	case ClassExternal:
		return fmt.Sprintf("external call, timeout %s", p.RequestTimeout)
	default:
		return "unrestricted"
	}
}

// Validate checks the policy's own configuration is sane (not whether a
// particular call satisfies it -- that is the tool's job at invocation
// time using these bounds).
func (p Policy) Validate() error {
	switch p.Class {
	case ClassFilesystemRead:
		if len(p.AllowedRoots) == 0 {
			return fmt.Errorf("filesystem_read policy requires at least one allowed root")
		}
	case ClassFilesystemWrite:
		if len(p.AllowedRoots) == 0 {
			return fmt.Errorf("filesystem_write policy requires at least one allowed root")
		}
	case ClassCodeExecution:
		if len(p.CommandAllowlist) == 0 {
			return fmt.Errorf("code_execution policy requires a non-empty command allowlist")
		}
		if p.WallClock <= 0 {
			return fmt.Errorf("code_execution policy requires a positive wall-clock timeout")
		}
	case ClassWeb:
		if p.RequestTimeout <= 0 {
			return fmt.Errorf("web policy requires a positive request timeout")
		}
	case ClassExternal:
		if p.RequestTimeout <= 0 {
			return fmt.Errorf("external policy requires a positive request timeout")
		}
	}
	return nil
}

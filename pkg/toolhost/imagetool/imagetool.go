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

// Package imagetool implements the image-generation tool class: a
// pluggable Backend produces one or more images from a text prompt,
// capped by policy on count and per-image byte size, and downscaled with
// golang.org/x/image/draw when a generated image exceeds the cap.
package imagetool

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"golang.org/x/image/draw"

	"github.com/swarmhive/swarmd/pkg/toolhost"
	"github.com/swarmhive/swarmd/pkg/toolhost/functiontool"
)

// Image is one generated image, always returned as PNG-encoded bytes.
type Image struct {
	PNG []byte
}

// Backend generates one or more images from a prompt. Implementations
// are free to call a remote service or render locally; imagetool only
// enforces policy on what comes back.
type Backend interface {
	Generate(ctx context.Context, prompt string, count, width, height int) ([]Image, error)
}

// GenerateImageArgs defines the parameters for image generation.
type GenerateImageArgs struct {
	Prompt string `json:"prompt" jsonschema:"required,description=Text description of the desired image"`
	Count  int    `json:"count,omitempty" jsonschema:"description=Number of images to generate,minimum=1,default=1"`
	Width  int    `json:"width,omitempty" jsonschema:"description=Image width in pixels,default=512"`
	Height int    `json:"height,omitempty" jsonschema:"description=Image height in pixels,default=512"`
}

// Config configures the generate_image tool.
type Config struct {
	MaxImages int
	MaxBytes  int64
}

func (c *Config) setDefaults() {
	if c.MaxImages <= 0 {
		c.MaxImages = 4
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 5 * 1024 * 1024
	}
}

// NewGenerateImage builds the generate_image tool definition around the
// given Backend.
func NewGenerateImage(cfg Config, backend Backend) (toolhost.Definition, error) {
	cfg.setDefaults()

	return functiontool.NewWithValidation(
		functiontool.Config{
			Name:        "generate_image",
			Description: "Generate one or more images from a text prompt.",
			Class:       toolhost.ClassImageGeneration,
			Policy: toolhost.Policy{
				Class:     toolhost.ClassImageGeneration,
				MaxImages: cfg.MaxImages,
				MaxBytes:  cfg.MaxBytes,
			},
		},
		func(ctx toolhost.Context, args GenerateImageArgs) (map[string]any, error) {
			return generateImpl(ctx, cfg, backend, args)
		},
		func(args GenerateImageArgs) error {
			if args.Prompt == "" {
				return fmt.Errorf("prompt cannot be empty")
			}
			if args.Count > cfg.MaxImages {
				return fmt.Errorf("requested %d images, max is %d", args.Count, cfg.MaxImages)
			}
			return nil
		},
	)
}

func generateImpl(ctx context.Context, cfg Config, backend Backend, args GenerateImageArgs) (map[string]any, error) {
	count := args.Count
	if count <= 0 {
		count = 1
	}
	width, height := args.Width, args.Height
	if width <= 0 {
		width = 512
	}
	if height <= 0 {
		height = 512
	}

	images, err := backend.Generate(ctx, args.Prompt, count, width, height)
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	if len(images) > cfg.MaxImages {
		images = images[:cfg.MaxImages]
	}

	results := make([]map[string]any, 0, len(images))
	for _, img := range images {
		data := img.PNG
		if int64(len(data)) > cfg.MaxBytes {
			shrunk, err := shrinkToFit(data, cfg.MaxBytes)
			if err != nil {
				return nil, fmt.Errorf("failed to downscale oversized image: %w", err)
			}
			data = shrunk
		}
		results = append(results, map[string]any{
			"content_type": "image/png",
			"base64":       base64.StdEncoding.EncodeToString(data),
			"size":         len(data),
		})
	}

	return map[string]any{
		"images": results,
		"count":  len(results),
	}, nil
}

// shrinkToFit halves an image's dimensions via golang.org/x/image/draw
// until its PNG encoding fits within maxBytes, or returns an error after
// a bounded number of attempts.
func shrinkToFit(pngData []byte, maxBytes int64) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(pngData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode source image: %w", err)
	}

	current := src
	for attempt := 0; attempt < 6; attempt++ {
		bounds := current.Bounds()
		newW := int(math.Max(1, float64(bounds.Dx())/2))
		newH := int(math.Max(1, float64(bounds.Dy())/2))

		dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
		draw.BiLinear.Scale(dst, dst.Bounds(), current, current.Bounds(), draw.Over, nil)

		var buf bytes.Buffer
		if err := png.Encode(&buf, dst); err != nil {
			return nil, fmt.Errorf("failed to encode downscaled image: %w", err)
		}
		if int64(buf.Len()) <= maxBytes {
			return buf.Bytes(), nil
		}
		current = dst
	}

	return nil, fmt.Errorf("image still exceeds %d bytes after downscaling", maxBytes)
}

// StubBackend renders a solid-color placeholder image. It ignores the
// prompt's content and exists to exercise imagetool's policy/encoding
// path without a network dependency; production configurations should
// supply a Backend that calls a real image-generation service.
type StubBackend struct{}

func (StubBackend) Generate(ctx context.Context, prompt string, count, width, height int) ([]Image, error) {
	images := make([]Image, 0, count)
	for i := 0; i < count; i++ {
		img := image.NewRGBA(image.Rect(0, 0, width, height))
		shade := uint8((len(prompt) + i*37) % 256)
		fill := color.RGBA{R: shade, G: shade / 2, B: 255 - shade, A: 255}
		draw.Draw(img, img.Bounds(), &image.Uniform{C: fill}, image.Point{}, draw.Src)

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode placeholder image: %w", err)
		}
		images = append(images, Image{PNG: buf.Bytes()})
	}
	return images, nil
}

// Copyright 2025 Certen Protocol
//
// ImageRuntime is the diffusion-model collaborator supplemental to
// spec.md section 4.5's image-generation billing path, grounded on
// original_source's diffusion billing module.

package inference

import "context"

// ImageRequest is one image generation request.
type ImageRequest struct {
	ModelID string
	Prompt  string
	Width   int
	Height  int
	Steps   int
	Seed    int64
}

// ImageResult is what the Token Accountant needs to compute billable
// units: the pixel dimensions and step count actually used, plus the
// generated bytes for output_hash.
type ImageResult struct {
	Width        int
	Height       int
	Steps        int
	OutputBytes  []byte
}

// ImageRuntime is the opaque diffusion-model collaborator.
type ImageRuntime interface {
	Generate(ctx context.Context, req ImageRequest) (*ImageResult, error)
}

// GenerationUnits computes the billing-unit formula from
// original_source/src/diffusion/billing.rs:
//
//	(width * height / 1_048_576) * (steps / 20) * model_multiplier
func GenerationUnits(width, height, steps int, modelMultiplier float64) float64 {
	megapixels := float64(width*height) / 1_048_576.0
	stepFactor := float64(steps) / 20.0
	return megapixels * stepFactor * modelMultiplier
}

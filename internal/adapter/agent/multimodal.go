package agent

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"jomra/internal/domain"
)

// MultimodalAgent describes the image attached to an input under the
// "image" param, given either as encoded bytes or as an image.Image.
type MultimodalAgent struct {
	*base
}

func NewMultimodalAgent() *MultimodalAgent {
	return &MultimodalAgent{
		base: newBase("multimodal", "Multimodal Agent", 500*time.Millisecond, domain.CapVision),
	}
}

func (a *MultimodalAgent) Initialize(context.Context) error {
	a.markReady()
	return nil
}

func (a *MultimodalAgent) Process(_ context.Context, _ *domain.ExecutionContext, input domain.AgentInput) (*domain.AgentResponse, error) {
	if err := a.checkReady(); err != nil {
		return nil, err
	}
	v, ok := input.Param("image")
	if !ok || v == nil {
		return domain.ErrorResponse("No image provided"), nil
	}

	var (
		width, height int
		format        = "raw"
	)
	switch img := v.(type) {
	case image.Image:
		b := img.Bounds()
		width, height = b.Dx(), b.Dy()
	case []byte:
		cfg, f, err := image.DecodeConfig(bytes.NewReader(img))
		if err != nil {
			return domain.ErrorResponse("Unreadable image: " + err.Error()), nil
		}
		width, height, format = cfg.Width, cfg.Height, f
	default:
		return domain.ErrorResponse(fmt.Sprintf("Unsupported image param %T", v)), nil
	}

	return domain.NewResponse().
		Text(fmt.Sprintf("Image analyzed: A scene with objects of size %dx%d", width, height)).
		Confidence(0.9).
		Meta("width", width).
		Meta("height", height).
		Meta("format", format).
		Build(), nil
}

func (a *MultimodalAgent) Shutdown(context.Context) error {
	a.markDown("shut down")
	return nil
}

var _ domain.Agent = (*MultimodalAgent)(nil)

//go:build !onnx

package cli

import (
	"errors"

	"github.com/becomeliminal/cortex/config"
	"github.com/becomeliminal/cortex/memory"
)

func newONNXEmbedder(*config.Config) (memory.Embedder, error) {
	return nil, errors.New("onnx embedder not compiled in: rebuild with -tags onnx")
}

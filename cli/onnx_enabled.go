//go:build onnx

package cli

import (
	"github.com/becomeliminal/cortex/config"
	"github.com/becomeliminal/cortex/memory"
	"github.com/becomeliminal/cortex/memory/embedder/onnx"
)

func newONNXEmbedder(cfg *config.Config) (memory.Embedder, error) {
	return onnx.New(onnx.Config{
		ModelPath:         cfg.Embed.ONNXModelPath,
		TokenizerPath:     cfg.Embed.ONNXTokenizerPath,
		SharedLibraryPath: cfg.Embed.ONNXLibraryPath,
		Dimensions:        cfg.Embed.Dimensions,
	})
}

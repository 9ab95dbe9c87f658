// Package config holds the tunables of a render context. A Config is loaded once, from
// defaults or a TOML file, validated, and treated as immutable afterward.
package config

import (
	"io"
	"os"

	"github.com/c2h5oh/datasize"
	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

const (
	MinFramesInFlight = 2
	MaxFramesInFlight = 3
)

type DescriptorConfig struct {
	// PerPage is the number of descriptors in each CPU-only descriptor page
	PerPage int `toml:"per_page"`
	// ShaderVisibleViews sizes the CBV/SRV/UAV stack owned by each command list
	ShaderVisibleViews int `toml:"shader_visible_views"`
	// ShaderVisibleSamplers sizes the sampler stack owned by each command list
	ShaderVisibleSamplers int `toml:"shader_visible_samplers"`
}

type BufferConfig struct {
	// FrameArenaSize is the capacity of each frame slot's SingleFrame arena
	FrameArenaSize datasize.ByteSize `toml:"frame_arena_size"`
	// BlockSize is the size of the upload blocks that back Immutable and Mutable buffers
	BlockSize datasize.ByteSize `toml:"block_size"`
}

type Config struct {
	FramesInFlight int `toml:"frames_in_flight"`
	// ExternallySynchronized drops the internal locks of the descriptor heaps and buffer
	// allocators for callers that drive a context from a single goroutine
	ExternallySynchronized bool `toml:"externally_synchronized"`

	Descriptors DescriptorConfig `toml:"descriptors"`
	Buffers     BufferConfig     `toml:"buffers"`
}

func Default() Config {
	return Config{
		FramesInFlight: MinFramesInFlight,
		Descriptors: DescriptorConfig{
			PerPage:               256,
			ShaderVisibleViews:    4096,
			ShaderVisibleSamplers: 256,
		},
		Buffers: BufferConfig{
			FrameArenaSize: 16 * datasize.MB,
			BlockSize:      32 * datasize.MB,
		},
	}
}

// Load reads a TOML document from r over the defaults. Unknown keys are an error.
func Load(r io.Reader) (Config, error) {
	cfg := Default()

	decoder := toml.NewDecoder(r)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(&cfg)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to decode config")
	}

	err = cfg.Validate()
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func LoadFile(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to open config file %s", path)
	}
	defer file.Close()

	cfg, err := Load(file)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config file %s", path)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.FramesInFlight < MinFramesInFlight || c.FramesInFlight > MaxFramesInFlight {
		return errors.Newf("frames_in_flight must be between %d and %d, but was %d", MinFramesInFlight, MaxFramesInFlight, c.FramesInFlight)
	}
	if c.Descriptors.PerPage <= 0 {
		return errors.Newf("descriptors.per_page must be positive, but was %d", c.Descriptors.PerPage)
	}
	if c.Descriptors.ShaderVisibleViews <= 0 {
		return errors.Newf("descriptors.shader_visible_views must be positive, but was %d", c.Descriptors.ShaderVisibleViews)
	}
	if c.Descriptors.ShaderVisibleSamplers <= 0 {
		return errors.Newf("descriptors.shader_visible_samplers must be positive, but was %d", c.Descriptors.ShaderVisibleSamplers)
	}
	if c.Buffers.FrameArenaSize == 0 {
		return errors.New("buffers.frame_arena_size must be positive")
	}
	if c.Buffers.BlockSize == 0 {
		return errors.New("buffers.block_size must be positive")
	}

	return nil
}

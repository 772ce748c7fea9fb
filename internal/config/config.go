package config

import (
	"context"
	"fmt"
	"math"

	"github.com/gogpu/gg"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/pipegraph/internal/ctxlog"
	"github.com/vk/pipegraph/internal/field"
)

// Config is the decoded project configuration.
type Config struct {
	LogLevel  string
	LogFormat string

	// Workers bounds concurrent device submissions.
	Workers int
	// TextureSize overrides the default texture edge length.
	TextureSize uint32

	// Defaults holds per-kind input overrides applied to newly created
	// nodes, keyed by node kind then field name.
	Defaults map[string]map[string]field.Field
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Workers:   4,
		Defaults:  make(map[string]map[string]field.Field),
	}
}

type fileRoot struct {
	Log      *logBlock        `hcl:"log,block"`
	Device   *deviceBlock     `hcl:"device,block"`
	Defaults []*defaultsBlock `hcl:"node_defaults,block"`
}

type logBlock struct {
	Level  *string `hcl:"level,optional"`
	Format *string `hcl:"format,optional"`
}

type deviceBlock struct {
	Workers     *int `hcl:"workers,optional"`
	TextureSize *int `hcl:"texture_size,optional"`
}

type defaultsBlock struct {
	Kind string   `hcl:"kind,label"`
	Body hcl.Body `hcl:",remain"`
}

// Load parses one HCL configuration file on top of the defaults.
func Load(ctx context.Context, path string) (*Config, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("loading configuration", "path", path)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse config %s: %w", path, diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("decode config %s: %w", path, diags)
	}

	cfg := Default()
	if root.Log != nil {
		if root.Log.Level != nil {
			cfg.LogLevel = *root.Log.Level
		}
		if root.Log.Format != nil {
			cfg.LogFormat = *root.Log.Format
		}
	}
	if root.Device != nil {
		if root.Device.Workers != nil {
			cfg.Workers = *root.Device.Workers
		}
		if root.Device.TextureSize != nil && *root.Device.TextureSize > 0 {
			cfg.TextureSize = uint32(*root.Device.TextureSize)
		}
	}
	for _, block := range root.Defaults {
		overrides, err := decodeOverrides(block.Body)
		if err != nil {
			return nil, fmt.Errorf("node_defaults %q: %w", block.Kind, err)
		}
		cfg.Defaults[block.Kind] = overrides
	}
	logger.Debug("configuration loaded",
		"log_level", cfg.LogLevel,
		"workers", cfg.Workers,
		"default_kinds", len(cfg.Defaults),
	)
	return cfg, nil
}

func decodeOverrides(body hcl.Body) (map[string]field.Field, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("read attributes: %w", diags)
	}
	out := make(map[string]field.Field, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("attribute %q: %w", name, diags)
		}
		f, err := fieldFromCty(val)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		out[name] = f
	}
	return out, nil
}

// fieldFromCty maps an HCL value onto a Field: a non-negative integral
// number becomes a u32, any other number an f32, and a 4-tuple of numbers
// a linear RGBA color.
func fieldFromCty(val cty.Value) (field.Field, error) {
	switch {
	case val.Type() == cty.Number:
		bf := val.AsBigFloat()
		if bf.IsInt() {
			if i, _ := bf.Int64(); i >= 0 && i <= math.MaxUint32 {
				return field.NewU32(uint32(i)), nil
			}
		}
		f, _ := bf.Float32()
		return field.NewF32(f), nil
	case val.Type().IsTupleType() && val.Type().Length() == 4:
		var parts [4]float64
		for i := 0; i < 4; i++ {
			elem := val.Index(cty.NumberIntVal(int64(i)))
			if elem.Type() != cty.Number {
				return field.Field{}, fmt.Errorf("tuple element %d is not a number", i)
			}
			parts[i], _ = elem.AsBigFloat().Float64()
		}
		return field.NewColor(gg.RGBA{R: parts[0], G: parts[1], B: parts[2], A: parts[3]}), nil
	default:
		return field.Field{}, fmt.Errorf("unsupported value type %s", val.Type().FriendlyName())
	}
}

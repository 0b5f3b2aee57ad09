package model

import "fmt"

// Variant names a model architecture under evaluation.
type Variant string

const (
	VariantFull            Variant = "base-model"
	VariantSingleEmbedding Variant = "ablation1"
	VariantNoTransition    Variant = "ablation2"
)

// Variants lists every variant in sweep order.
var Variants = []Variant{VariantFull, VariantSingleEmbedding, VariantNoTransition}

func ParseVariant(raw string) (Variant, error) {
	for _, v := range Variants {
		if string(v) == raw {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown model variant %q", raw)
}

// CheckpointSuffix is appended to "params" to form the variant's parameter directory.
func (v Variant) CheckpointSuffix() string {
	switch v {
	case VariantSingleEmbedding:
		return "-ablation1"
	case VariantNoTransition:
		return "-ablation2"
	default:
		return ""
	}
}

// ArchitectureName is the name the inference backend instantiates.
func (v Variant) ArchitectureName() string {
	switch v {
	case VariantSingleEmbedding:
		return "single_embedding"
	case VariantNoTransition:
		return "no_transition"
	default:
		return "full"
	}
}

func (v Variant) Description() string {
	switch v {
	case VariantFull:
		return "graph-augmented temporal attention model"
	case VariantSingleEmbedding:
		return "model with only a single code embedding"
	case VariantNoTransition:
		return "model without the transition module"
	default:
		return "unknown"
	}
}

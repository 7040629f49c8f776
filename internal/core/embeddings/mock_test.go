package embeddings

import (
	"context"
	"math"
	"testing"
)

func TestMockProviderDeterministic(t *testing.T) {
	p := NewMockProvider()
	ctx := context.Background()

	first, err := p.GetEmbedding(ctx, "openai releases new model")
	if err != nil {
		t.Fatalf("GetEmbedding() error = %v", err)
	}

	second, err := p.GetEmbedding(ctx, "openai releases new model")
	if err != nil {
		t.Fatalf("GetEmbedding() error = %v", err)
	}

	if len(first.Vector) != DefaultDimensions {
		t.Fatalf("vector length = %d, want %d", len(first.Vector), DefaultDimensions)
	}

	for i := range first.Vector {
		if first.Vector[i] != second.Vector[i] {
			t.Fatalf("vectors differ at index %d: %v != %v", i, first.Vector[i], second.Vector[i])
		}
	}
}

func TestMockProviderDistinctTexts(t *testing.T) {
	p := NewMockProviderWithDimensions(64)
	ctx := context.Background()

	a, err := p.GetEmbedding(ctx, "first headline")
	if err != nil {
		t.Fatalf("GetEmbedding() error = %v", err)
	}

	b, err := p.GetEmbedding(ctx, "second headline")
	if err != nil {
		t.Fatalf("GetEmbedding() error = %v", err)
	}

	same := true

	for i := range a.Vector {
		if a.Vector[i] != b.Vector[i] {
			same = false
			break
		}
	}

	if same {
		t.Fatal("different texts produced identical vectors")
	}
}

func TestMockProviderUnitLength(t *testing.T) {
	p := NewMockProvider()

	result, err := p.GetEmbedding(context.Background(), "normalize me")
	if err != nil {
		t.Fatalf("GetEmbedding() error = %v", err)
	}

	var sum float64
	for _, v := range result.Vector {
		sum += float64(v) * float64(v)
	}

	if math.Abs(math.Sqrt(sum)-1.0) > 0.01 {
		t.Fatalf("vector norm = %f, want ~1.0", math.Sqrt(sum))
	}
}

func TestMockProviderMetadata(t *testing.T) {
	p := NewMockProvider()

	result, err := p.GetEmbedding(context.Background(), "metadata")
	if err != nil {
		t.Fatalf("GetEmbedding() error = %v", err)
	}

	if result.Provider != ProviderMock {
		t.Errorf("provider = %q, want %q", result.Provider, ProviderMock)
	}

	if result.Model != MockModelID {
		t.Errorf("model = %q, want %q", result.Model, MockModelID)
	}
}

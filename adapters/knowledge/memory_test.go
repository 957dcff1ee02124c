package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func roamingCorpus() []Document {
	return []Document{
		{Content: "International roaming plans start at 10 dollars per week.", Location: "docs/roaming.md"},
		{Content: "The family plan includes four lines with unlimited data.", Location: "docs/family.md"},
		{Content: "Roaming data in Europe uses the international partner network.", Location: "docs/europe.md"},
		{Content: "Device insurance covers water damage and theft.", Location: "docs/insurance.md"},
	}
}

func TestSearch_RanksByTermOverlap(t *testing.T) {
	kb := NewMemoryBase(roamingCorpus())

	answer, err := kb.Search(context.Background(), "international roaming plans")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if answer.Query != "international roaming plans" {
		t.Errorf("Query not echoed: %q", answer.Query)
	}
	if answer.ResultCount == 0 {
		t.Fatal("Expected results for matching query")
	}
	if answer.Results[0].Location != "docs/roaming.md" {
		t.Errorf("Best match should be the roaming doc, got %s", answer.Results[0].Location)
	}
	for i := 1; i < len(answer.Results); i++ {
		if answer.Results[i].Score > answer.Results[i-1].Score {
			t.Errorf("Results not sorted by score at index %d", i)
		}
	}
}

func TestSearch_NoMatchesReturnsEmptyAnswer(t *testing.T) {
	kb := NewMemoryBase(roamingCorpus())

	answer, err := kb.Search(context.Background(), "quantum chromodynamics")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if answer.ResultCount != 0 || len(answer.Results) != 0 {
		t.Errorf("Expected empty answer, got %d results", answer.ResultCount)
	}
}

func TestSearch_CapsResultCount(t *testing.T) {
	docs := make([]Document, 10)
	for i := range docs {
		docs[i] = Document{Content: "roaming roaming roaming"}
	}
	kb := NewMemoryBase(docs)

	answer, err := kb.Search(context.Background(), "roaming")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if answer.ResultCount != maxResults {
		t.Errorf("Expected %d results, got %d", maxResults, answer.ResultCount)
	}
}

func TestNewMemoryBaseFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kb.json")
	payload := `{"documents":[{"content":"Roaming plans start at 10 dollars.","location":"docs/roaming.md"}]}`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatal(err)
	}

	kb := NewMemoryBaseFromFile(path, zap.NewNop())
	answer, err := kb.Search(context.Background(), "roaming plans")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if answer.ResultCount != 1 {
		t.Errorf("Expected 1 result, got %d", answer.ResultCount)
	}

	empty := NewMemoryBaseFromFile(filepath.Join(dir, "missing.json"), zap.NewNop())
	answer, _ = empty.Search(context.Background(), "roaming")
	if answer.ResultCount != 0 {
		t.Errorf("Missing corpus should search empty, got %d results", answer.ResultCount)
	}
}

package uif

import "testing"

// TestCloneMessagesAreIndependent verifies mutating the clone's Messages
// slice does not alias the original RequestUIF's backing array.
func TestCloneMessagesAreIndependent(t *testing.T) {
	orig := RequestUIF{
		Model:    "gpt-4o",
		Messages: []Message{{Role: RoleUser, Content: []ContentPart{{Kind: PartText, Text: "hi"}}}},
	}

	clone := orig.Clone()
	clone.Messages[0].Role = RoleAssistant

	if orig.Messages[0].Role != RoleUser {
		t.Fatalf("expected original Messages untouched, got role %q", orig.Messages[0].Role)
	}
}

// TestCloneAppendingToolsDoesNotGrowOriginal verifies appending to the
// clone's Tools slice never reallocates into the original's backing array.
func TestCloneAppendingToolsDoesNotGrowOriginal(t *testing.T) {
	orig := RequestUIF{
		Model: "gpt-4o",
		Tools: []ToolDefinition{{Name: "a"}},
	}

	clone := orig.Clone()
	clone.Tools = append(clone.Tools, ToolDefinition{Name: "b"})

	if len(orig.Tools) != 1 {
		t.Fatalf("expected original Tools length 1, got %d", len(orig.Tools))
	}
}

// TestCloneMetadataIsACopy verifies the Metadata map is duplicated rather
// than shared, so mutating the clone's map never touches the original's.
func TestCloneMetadataIsACopy(t *testing.T) {
	orig := RequestUIF{
		Model:    "gpt-4o",
		Metadata: map[string]any{"k": "v"},
	}

	clone := orig.Clone()
	clone.Metadata["k"] = "changed"

	if orig.Metadata["k"] != "v" {
		t.Fatalf("expected original Metadata untouched, got %v", orig.Metadata["k"])
	}
}

// TestCloneNilMetadataStaysNil verifies Clone does not allocate an empty
// map when the original carries none.
func TestCloneNilMetadataStaysNil(t *testing.T) {
	orig := RequestUIF{Model: "gpt-4o"}
	clone := orig.Clone()

	if clone.Metadata != nil {
		t.Fatalf("expected nil Metadata to stay nil, got %v", clone.Metadata)
	}
}

// TestCloneEmptyMessagesAndToolsStayNilNotEmptySlice verifies Clone on a
// RequestUIF with no messages/tools doesn't fabricate non-nil empty slices
// that would change JSON marshaling (omitempty) behavior downstream.
func TestCloneEmptyMessagesAndToolsStayNilNotEmptySlice(t *testing.T) {
	orig := RequestUIF{Model: "gpt-4o"}
	clone := orig.Clone()

	if clone.Messages != nil {
		t.Fatalf("expected nil Messages to stay nil, got %v", clone.Messages)
	}
	if clone.Tools != nil {
		t.Fatalf("expected nil Tools to stay nil, got %v", clone.Tools)
	}
}

package upstream

import (
	"testing"

	"github.com/nulpointcorp/llm-gateway/internal/config"
	"github.com/nulpointcorp/llm-gateway/internal/uif"
)

func TestCanBypassRaw(t *testing.T) {
	cases := []struct {
		typ  config.ProviderType
		want bool
	}{
		{config.ProviderOpenAI, true},
		{config.ProviderAnthropic, true},
		{config.ProviderMistral, true},
		{config.ProviderCompatible, true},
		{config.ProviderAzure, false},
		{config.ProviderVertexAI, false},
		{config.ProviderBedrock, false},
		{config.ProviderGemini, false},
	}
	for _, c := range cases {
		p := &config.Provider{Type: c.typ}
		if got := CanBypassRaw(p); got != c.want {
			t.Errorf("CanBypassRaw(%s) = %v, want %v", c.typ, got, c.want)
		}
	}
}

func TestWireTag(t *testing.T) {
	cases := []struct {
		typ    config.ProviderType
		want   uif.ProtocolTag
		wantOK bool
	}{
		{config.ProviderOpenAI, uif.OpenAIChat, true},
		{config.ProviderMistral, uif.OpenAIChat, true},
		{config.ProviderCompatible, uif.OpenAIChat, true},
		{config.ProviderAnthropic, uif.AnthropicMessages, true},
		{config.ProviderAzure, "", false},
		{config.ProviderVertexAI, "", false},
		{config.ProviderBedrock, "", false},
		{config.ProviderGemini, "", false},
	}
	for _, c := range cases {
		p := &config.Provider{Type: c.typ}
		tag, ok := WireTag(p)
		if tag != c.want || ok != c.wantOK {
			t.Errorf("WireTag(%s) = (%q, %v), want (%q, %v)", c.typ, tag, ok, c.want, c.wantOK)
		}
	}
}

func TestBypassPath(t *testing.T) {
	if p, ok := bypassPath(uif.OpenAIChat); !ok || p != "/chat/completions" {
		t.Errorf("openai_chat bypass path = (%q, %v)", p, ok)
	}
	if p, ok := bypassPath(uif.AnthropicMessages); !ok || p != "/messages" {
		t.Errorf("anthropic_messages bypass path = (%q, %v)", p, ok)
	}
	if _, ok := bypassPath(uif.ResponseAPI); ok {
		t.Error("response_api should have no raw bypass path")
	}
}

func TestBypassUnknownTagErrors(t *testing.T) {
	p := &config.Provider{Type: config.ProviderOpenAI, APIKey: "sk-test"}
	if _, err := Bypass(p, uif.ResponseAPI, []byte(`{}`)); err == nil {
		t.Fatal("expected error for a protocol tag with no raw bypass path")
	}
}

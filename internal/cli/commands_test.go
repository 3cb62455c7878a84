package cli

import (
	"bytes"
	"strings"
	"testing"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	// version must not need a valid configuration
	t.Setenv("LLM_PROVIDER", "nonsense")

	out, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "stock-insight "+Version) {
		t.Errorf("output = %q", out)
	}
}

func TestRootCommand_InvalidConfiguration(t *testing.T) {
	t.Setenv("LOG_FORMAT", "xml")

	_, err := runCommand(t, "ask", "What is AAPL trading at?")
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestAskCommand_Validation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		apiKey  string
		wantErr string
	}{
		{
			name:    "blank question",
			args:    []string{"ask", "   "},
			apiKey:  "sk-test",
			wantErr: "question cannot be empty",
		},
		{
			name:    "missing credentials",
			args:    []string{"ask", "How is MSFT doing?"},
			apiKey:  "",
			wantErr: "OPENAI_API_KEY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LLM_PROVIDER", "openai")
			t.Setenv("OPENAI_API_KEY", tt.apiKey)

			_, err := runCommand(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestProfileCommand_InvalidSymbol(t *testing.T) {
	_, err := runCommand(t, "profile", strings.Repeat("X", 21))
	if err == nil || !strings.Contains(err.Error(), "symbol too long") {
		t.Errorf("expected symbol validation error, got %v", err)
	}
}

func TestProfileCommand_RequiresSymbol(t *testing.T) {
	if _, err := runCommand(t, "profile"); err == nil {
		t.Error("expected an argument error")
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"serve", "profile", "search", "ask", "version"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

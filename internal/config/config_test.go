package config

import (
	"encoding/json"
	"testing"
)

func TestRawCommandNormalize(t *testing.T) {
	cases := []struct {
		name string
		json string
		want string
	}{
		{"string", `"echo hello"`, "echo hello"},
		{"argv", `["echo", "hello world"]`, `echo 'hello world'`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var r RawCommand
			if err := json.Unmarshal([]byte(tc.json), &r); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := r.Normalize(); got != tc.want {
				t.Fatalf("Normalize() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBroodConfigValidate(t *testing.T) {
	base := func() BroodConfig {
		return BroodConfig{
			Commands: []CommandConfig{
				{
					Name:    "web",
					Command: RawCommand{asString: "serve"},
					Starter: StarterConfig{Kind: StarterOnce},
				},
			},
		}
	}

	t.Run("valid", func(t *testing.T) {
		if err := base().Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("duplicate names", func(t *testing.T) {
		cfg := base()
		cfg.Commands = append(cfg.Commands, cfg.Commands[0])
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for duplicate command name")
		}
	})

	t.Run("empty command", func(t *testing.T) {
		cfg := base()
		cfg.Commands[0].Command = RawCommand{}
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for empty command")
		}
	})

	t.Run("watch without paths", func(t *testing.T) {
		cfg := base()
		cfg.Commands[0].Starter = StarterConfig{Kind: StarterWatch}
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for watch starter with no paths")
		}
	})

	t.Run("unknown failure mode", func(t *testing.T) {
		cfg := base()
		cfg.FailureMode = "explode"
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for unknown failure_mode")
		}
	})
}

func TestCommandConfigShutdownConfig(t *testing.T) {
	cfg := CommandConfig{
		Name:    "web",
		Command: RawCommand{asString: "serve"},
		Starter: StarterConfig{Kind: StarterRestart, DelaySeconds: 1},
	}

	if _, ok := cfg.ShutdownConfig(); ok {
		t.Fatal("expected no shutdown config when Shutdown is nil")
	}

	shutdown := RawCommand{asString: "serve --stop"}
	cfg.Shutdown = &shutdown
	sc, ok := cfg.ShutdownConfig()
	if !ok {
		t.Fatal("expected a shutdown config")
	}
	if sc.Command.Normalize() != "serve --stop" {
		t.Fatalf("shutdown command = %q", sc.Command.Normalize())
	}
	if sc.Starter.Kind != StarterOnce {
		t.Fatalf("shutdown starter = %v, want once", sc.Starter.Kind)
	}
	if sc.Shutdown != nil {
		t.Fatal("shutdown config must not itself carry a shutdown command")
	}
}

func TestCommandConfigEffectivePrefix(t *testing.T) {
	c := CommandConfig{Name: "web"}
	prefix, style := c.EffectivePrefix("[{tag}]", "auto")
	if prefix != "[{tag}]" || style != "auto" {
		t.Fatalf("expected fallback to defaults, got %q %q", prefix, style)
	}

	c.Prefix, c.PrefixStyle = "->{tag}", "fixed"
	prefix, style = c.EffectivePrefix("[{tag}]", "auto")
	if prefix != "->{tag}" || style != "fixed" {
		t.Fatalf("expected own values to win, got %q %q", prefix, style)
	}
}

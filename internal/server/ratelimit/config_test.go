package ratelimit

import "testing"

func TestConfig_Match(t *testing.T) {
	c := NewConfig(6000, 60)
	defer c.Close()
	tests := []struct {
		method, path, want string
	}{
		{"GET", "/health", ""},
		{"POST", "/health", ""},
		{"GET", "/emojis", "read"},
		{"GET", "/emojis/history", "read"},
		{"GET", "/schema", "read"},
		{"POST", "/emojis", "write"},
		{"PATCH", "/emojis/e_u1_0", "write"},
		{"DELETE", "/emojis/e_u1_0", "write"},
		{"OPTIONS", "/emojis", ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			got := ""
			if tier := c.Match(tt.method, tt.path); tier != nil {
				got = tier.Name
			}
			if got != tt.want {
				t.Errorf("Match = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfig_Disabled(t *testing.T) {
	c := NewConfig(0, 10)
	defer c.Close()
	if c.Read.Limiter != nil {
		t.Error("read tier should be disabled")
	}
	if tier := c.Match("GET", "/emojis"); tier != nil {
		t.Errorf("disabled tier matched: %s", tier.Name)
	}
	if tier := c.Match("POST", "/emojis"); tier == nil || tier.Name != "write" {
		t.Errorf("write tier = %v", tier)
	}
	var nilCfg *Config
	if nilCfg.Match("GET", "/emojis") != nil {
		t.Error("nil config should not limit")
	}
	nilCfg.Close()
}

package config

import "testing"

func TestRetryConfig_MaxAttemptsTracksMaxRetries(t *testing.T) {
	cfg := Default()
	cfg.MaxRetries = 5

	retryCfg := cfg.RetryConfig()
	if retryCfg.MaxAttempts != 6 {
		t.Errorf("MaxAttempts = %d, want 6 (max_retries + 1 initial attempt)", retryCfg.MaxAttempts)
	}
}

func TestTransportConfig_CopiesDefaultHeaders(t *testing.T) {
	cfg := Default()
	cfg.DefaultHeaders = map[string]string{"X-Test": "value"}

	transportCfg := cfg.TransportConfig()
	if got := transportCfg.DefaultHeaders.Get("X-Test"); got != "value" {
		t.Errorf("DefaultHeaders.Get(X-Test) = %q, want %q", got, "value")
	}
	if transportCfg.BaseURL != cfg.BaseURL {
		t.Errorf("BaseURL = %q, want %q", transportCfg.BaseURL, cfg.BaseURL)
	}
}

func TestDirectConfig_PassesThroughAuth(t *testing.T) {
	cfg := Default()
	cfg.APIKey = "sk-test"

	directCfg := cfg.DirectConfig()
	if directCfg.APIKey != "sk-test" {
		t.Errorf("APIKey = %q, want %q", directCfg.APIKey, "sk-test")
	}
	if directCfg.BaseURL != cfg.BaseURL {
		t.Errorf("BaseURL = %q, want %q", directCfg.BaseURL, cfg.BaseURL)
	}
}

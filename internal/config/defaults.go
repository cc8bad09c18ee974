package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			StateDir: "~/.photodrop",
			LogLevel: "info",
		},
		Session: SessionConfig{
			FlushIntervalSeconds: 10,
			HistoryLimit:         200,
		},
		Storage: StorageConfig{
			Region: "sa-east-1",
		},
		Webhook: WebhookConfig{
			Enabled: true,
			Port:    3000,
			Path:    "/",
		},
		Flow: FlowConfig{
			IncludePaymentStep: true,
			FallbackMode:       "none",
		},
		Assistant: AssistantConfig{
			APIBase: "https://api.openai.com/v1",
			Model:   "gpt-4o",
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}

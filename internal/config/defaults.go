package config

import "path/filepath"

// DefaultForwardTemplate is the class-notice wrapper applied to
// forwarded teacher messages. Placeholders are replaced by the planner.
const DefaultForwardTemplate = `📢 【班級通知】
來源：{{SENDER}}
時間：{{TIME}}

{{CONTENT}}

請大家注意查看！
---
班長轉發`

// Defaults returns a config with every field set to a workable value.
// Load starts from this and lets the YAML file override.
func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:            "info",
			Automator:           "osascript",
			PollIntervalSeconds: 3,
			AckText:             "收到！",
		},
		SiliconFlow: SiliconFlowConfig{
			Enabled:        false,
			APIBase:        "https://api.siliconflow.cn/v1",
			Model:          "Pro/deepseek-ai/DeepSeek-R1",
			MaxTokens:      512,
			Temperature:    0.7,
			TimeoutSeconds: 30,
		},
		Forward: ForwardConfig{
			Template:         DefaultForwardTemplate,
			MinMessageLength: 0,
		},
		Journal: JournalConfig{
			DBPath:        filepath.Join(DefaultConfigDir(), "infobot.db"),
			RetentionDays: 7,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9091",
		},
		Upkeep: UpkeepConfig{
			HealthCheckMinutes: 30,
			CleanupMinutes:     60,
			DailyReport:        true,
		},
	}
}

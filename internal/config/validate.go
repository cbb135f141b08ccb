package config

import (
	"fmt"
	"strings"
)

// Validate checks the parts of the config that would otherwise only blow up
// at job-registration time. It is used both at startup and as the hot-reload
// validator, so a bad edit never replaces a working config.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if _, err := ParseDurationField("scheduler.pause", cfg.Scheduler.Pause); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.idle_pause", cfg.Scheduler.IdlePause); err != nil {
		return err
	}

	if j := cfg.Jobs.WarningReport; j != nil && j.Enabled {
		if _, err := ParseSchedule(j.Schedule); err != nil {
			return fmt.Errorf("jobs.warning_report: %w", err)
		}
		if strings.TrimSpace(j.Input) == "" || strings.TrimSpace(j.Output) == "" {
			return fmt.Errorf("jobs.warning_report: input and output are required")
		}
	}
	if j := cfg.Jobs.Prune; j != nil && j.Enabled {
		if _, err := ParseSchedule(j.Schedule); err != nil {
			return fmt.Errorf("jobs.prune: %w", err)
		}
		if strings.TrimSpace(j.Root) == "" {
			return fmt.Errorf("jobs.prune: root is required")
		}
	}
	seen := map[string]bool{}
	for i, f := range cfg.Jobs.Forms {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return fmt.Errorf("jobs.forms[%d]: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("jobs.forms[%d]: duplicate name %q", i, name)
		}
		seen[name] = true
		if !f.Enabled {
			continue
		}
		if _, err := ParseSchedule(f.Schedule); err != nil {
			return fmt.Errorf("jobs.forms[%d] (%s): %w", i, name, err)
		}
		if strings.TrimSpace(f.Template) == "" || strings.TrimSpace(f.Input) == "" ||
			strings.TrimSpace(f.Output) == "" || strings.TrimSpace(f.Prices) == "" {
			return fmt.Errorf("jobs.forms[%d] (%s): template, input, output and prices are required", i, name)
		}
		if strings.TrimSpace(f.Ticker) == "" {
			return fmt.Errorf("jobs.forms[%d] (%s): ticker is required", i, name)
		}
		if strings.TrimSpace(f.Rates.File) == "" && strings.TrimSpace(f.Rates.URL) == "" {
			return fmt.Errorf("jobs.forms[%d] (%s): rates.file or rates.url is required", i, name)
		}
	}

	if st := cfg.Storage; st != nil {
		if _, err := ParseDurationField("storage.busy_timeout", st.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}

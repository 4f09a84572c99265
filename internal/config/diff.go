package config

import (
	"reflect"
	"sort"
	"strings"

	"lwaobs/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// attrs for logging them. Secrets (tokens, passwords) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	oc, nc := oldCfg.Coord, newCfg.Coord
	if oc.Driver != nc.Driver || oc.Dir != nc.Dir || !reflect.DeepEqual(oc.Endpoints, nc.Endpoints) ||
		oc.DialTimeout != nc.DialTimeout || oc.Username != nc.Username ||
		oc.Password != nc.Password {
		changed = append(changed, "coord")
		attrs = append(attrs,
			logx.String("coord.driver", nc.Driver),
			logx.Strings("coord.endpoints", nc.Endpoints),
			logx.Bool("coord.auth_set", nc.Username != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.State, newCfg.State) {
		changed = append(changed, "state")
		attrs = append(attrs,
			logx.String("state.driver", newCfg.State.Driver),
			logx.Bool("state.path_set", strings.TrimSpace(newCfg.State.Path) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Executor, newCfg.Executor) {
		changed = append(changed, "executor")
		attrs = append(attrs,
			logx.String("executor.tick", newCfg.Executor.Tick),
			logx.String("executor.horizon", newCfg.Executor.Horizon),
			logx.Int("executor.workers", newCfg.Executor.Workers),
		)
	}

	if !reflect.DeepEqual(oldCfg.Builder, newCfg.Builder) {
		changed = append(changed, "builder")
		attrs = append(attrs,
			logx.String("builder.buffer.calibration", newCfg.Builder.Buffer.Calibration),
			logx.String("builder.default_config_file", newCfg.Builder.DefaultConfigFile),
		)
	}

	ol, nl := oldCfg.Controller, newCfg.Controller
	if ol.Driver != nl.Driver || ol.URL != nl.URL || ol.Timeout != nl.Timeout || ol.Token != nl.Token {
		changed = append(changed, "controller")
		attrs = append(attrs,
			logx.String("controller.driver", nl.Driver),
			logx.String("controller.url", nl.URL),
			logx.Bool("controller.token_set", nl.Token != ""),
		)
	}

	on, nn := derefNotifier(oldCfg.Notifier), derefNotifier(newCfg.Notifier)
	tokenChanged := on.Token != nn.Token
	on.Token, nn.Token = "", ""
	if tokenChanged || !reflect.DeepEqual(on, nn) {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", nn.Enabled),
			logx.Int64("notifier.chat_id", nn.ChatID),
			logx.Int("notifier.rate_per_sec", nn.RatePerSec),
		)
	}

	if !reflect.DeepEqual(oldCfg.Recurring, newCfg.Recurring) {
		changed = append(changed, "recurring")
		attrs = append(attrs,
			logx.String("recurring.timezone", newCfg.Recurring.Timezone),
			logx.Int("recurring.jobs", len(newCfg.Recurring.Jobs)),
		)
	}

	od, nd := oldCfg.Diag, newCfg.Diag
	if od != nd {
		changed = append(changed, "diag")
		attrs = append(attrs,
			logx.Bool("diag.enabled", nd.Enabled),
			logx.String("diag.addr", nd.Addr),
			logx.Bool("diag.token_set", nd.Token != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefNotifier(n *NotifierConfig) NotifierConfig {
	if n == nil {
		return NotifierConfig{}
	}
	return *n
}

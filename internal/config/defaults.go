package config

const (
	defaultConfigPath           = "~/.config/devmirror/config.toml"
	defaultStateDir             = "~/.local/state/devmirror"
	defaultSocketName           = "devmirror.sock"
	defaultDiscoveryBinary      = "adb"
	defaultPollInterval         = 5
	defaultQueryTimeout         = 30
	defaultMirrorBinary         = "scrcpy"
	defaultMirrorSerialFlag     = "-s"
	defaultRestartGrace         = 2
	defaultKillTimeout          = 3
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultNotifyRequestTimeout = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Discovery: Discovery{
			Binary:       defaultDiscoveryBinary,
			ListArgs:     []string{"devices"},
			StartArgs:    []string{"start-server"},
			PollInterval: defaultPollInterval,
			QueryTimeout: defaultQueryTimeout,
			Hotplug:      true,
		},
		Mirror: Mirror{
			Binary:       defaultMirrorBinary,
			SerialFlag:   defaultMirrorSerialFlag,
			Args:         []string{"--no-audio"},
			RestartGrace: defaultRestartGrace,
			KillTimeout:  defaultKillTimeout,
		},
		Paths: Paths{
			RuntimeDir: defaultRuntimeDir(),
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			DeviceEvents:   true,
			Failures:       true,
		},
	}
}

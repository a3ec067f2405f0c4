package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// PiholeConfig holds everything that describes the ad-blocking container.
type PiholeConfig struct {
	ContainerName string   `mapstructure:"container_name"`
	Image         string   `mapstructure:"image"`
	Hostname      string   `mapstructure:"hostname"`
	DNSPort       int      `mapstructure:"dns_port"`
	WebPort       int      `mapstructure:"web_port"`
	WebPassword   string   `mapstructure:"web_password"`
	UpstreamDNS   []string `mapstructure:"upstream_dns"`
	Timezone      string   `mapstructure:"timezone"`
}

// ProxyConfig holds the local forwarding-proxy settings.
type ProxyConfig struct {
	ListenAddress string `mapstructure:"listen_address"`
	ConfigPath    string `mapstructure:"config_path"`
	ProbeDomain   string `mapstructure:"probe_domain"`
	ProbeRetries  int    `mapstructure:"probe_retries"`
}

// DepsConfig holds dependency-gate timing knobs.
type DepsConfig struct {
	DockerWaitSeconds int `mapstructure:"docker_wait_seconds"`
	DockerPollSeconds int `mapstructure:"docker_poll_seconds"`
}

// VerifyConfig holds the functional-check targets.
type VerifyConfig struct {
	PingTarget string `mapstructure:"ping_target"`
	TestDomain string `mapstructure:"test_domain"`
	AdDomain   string `mapstructure:"ad_domain"`
}

// LoggingConfig holds the logging-related configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	Debug bool   `mapstructure:"debug"`
}

// Config is the top-level configuration struct. It is populated once at
// startup and treated as immutable by every component it is handed to.
type Config struct {
	ConfigDir string        `mapstructure:"config_dir"`
	HostsFile string        `mapstructure:"hosts_file"`
	Pihole    PiholeConfig  `mapstructure:"pihole"`
	Proxy     ProxyConfig   `mapstructure:"proxy"`
	Deps      DepsConfig    `mapstructure:"deps"`
	Verify    VerifyConfig  `mapstructure:"verify"`
	Logging   LoggingConfig `mapstructure:"log"`
}

// BackupPath is the fixed location of the DNS backup file.
func (c *Config) BackupPath() string {
	return filepath.Join(c.ConfigDir, "dns-backup.json")
}

// PiholeVolume is the bind-mount source for /etc/pihole.
func (c *Config) PiholeVolume() string {
	return filepath.Join(c.ConfigDir, "pihole")
}

// DnsmasqVolume is the bind-mount source for /etc/dnsmasq.d.
func (c *Config) DnsmasqVolume() string {
	return filepath.Join(c.ConfigDir, "dnsmasq.d")
}

// InitConfig sets defaults, locates the config file, and reads it.
func InitConfig() error {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	viper.SetDefault("config_dir", filepath.Join(home, ".piholeup"))
	viper.SetDefault("hosts_file", "/etc/hosts")
	viper.SetDefault("pihole.container_name", "pihole")
	viper.SetDefault("pihole.image", "pihole/pihole:latest")
	viper.SetDefault("pihole.hostname", "pi.hole")
	viper.SetDefault("pihole.dns_port", 5335)
	viper.SetDefault("pihole.web_port", 80)
	viper.SetDefault("pihole.web_password", "pihole")
	viper.SetDefault("pihole.upstream_dns", []string{"1.1.1.1", "1.0.0.1"})
	viper.SetDefault("pihole.timezone", "")
	viper.SetDefault("proxy.listen_address", "127.0.0.1")
	viper.SetDefault("proxy.config_path", "/opt/homebrew/etc/dnsmasq.conf")
	viper.SetDefault("proxy.probe_domain", "example.com")
	viper.SetDefault("proxy.probe_retries", 10)
	viper.SetDefault("deps.docker_wait_seconds", 60)
	viper.SetDefault("deps.docker_poll_seconds", 8)
	viper.SetDefault("verify.ping_target", "1.1.1.1")
	viper.SetDefault("verify.test_domain", "example.com")
	viper.SetDefault("verify.ad_domain", "doubleclick.net")
	viper.SetDefault("log.level", "INFO")
	viper.SetDefault("log.debug", false)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(filepath.Join(home, ".piholeup"))
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Not found is fine: defaults plus env vars apply.
	}

	viper.SetEnvPrefix("PIHOLEUP")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return nil
}

// Load unmarshals the configuration into the Config struct.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if len(config.Pihole.UpstreamDNS) == 0 {
		return nil, fmt.Errorf("at least one upstream DNS server is required")
	}
	return &config, nil
}

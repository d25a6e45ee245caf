package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const envPrefix string = "RENTALS"

type ConfigHandler struct {
	mainViper   *viper.Viper
	secretViper *viper.Viper
	lock        *sync.Mutex
}

func (c *ConfigHandler) HandleChanges(callback func(Config, error)) {
	c.mainViper.OnConfigChange(func(e fsnotify.Event) {
		slog.Info("main config file changed", "path", e.Name)
		callback(c.Config())
	})
	c.secretViper.OnConfigChange(func(e fsnotify.Event) {
		slog.Info("secret config file changed", "path", e.Name)
		callback(c.Config())
	})
}

// Creates a configuration handler that reads the configuration files, merges them and can watch
// them for changes. Please note that the merges replace whole arrays - they do not merge arrays.
// Both files are optional. The secret file will always overwrite anything in the non-secret / regular
// file. And any environment variables (prefixed with RENTALS_) will always overwrite both files, so the
// order of preference from most preferred to least is environment variables, secret config, non-secret
// config, defaults.
func NewConfigHandler() *ConfigHandler {
	main := viper.New()
	main.SetConfigType("yaml")
	main.SetConfigName("config")
	secret := viper.New()
	secret.SetConfigType("yaml")
	secret.SetConfigName("secret_config")
	// Viper will look through the list of paths and use the first one where there is a file
	// so the path specified in the env variable will always take precedence over the rest
	configPaths := []string{}
	configPathEnv := os.Getenv("CONFIG_LOCATION")
	if configPathEnv != "" {
		configPaths = append(configPaths, configPathEnv)
	}
	configPaths = append(configPaths, "/etc/rentals-gateway", ".")
	for _, path := range configPaths {
		main.AddConfigPath(path)
		secret.AddConfigPath(path)
	}
	setDefaults(main)
	main.SetEnvPrefix(envPrefix)
	main.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	main.AutomaticEnv()
	return &ConfigHandler{secretViper: secret, mainViper: main, lock: &sync.Mutex{}}
}

// setDefaults registers every key so that environment variables are picked up even when
// no configuration file mentions them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("runningEnvironment", string(Production))
	v.SetDefault("debugMode", false)

	v.SetDefault("backend.baseURL", "")
	v.SetDefault("backend.requestTimeoutSeconds", 30)
	v.SetDefault("backend.refreshTimeoutSeconds", 30)
	v.SetDefault("backend.accessTokenTTLHours", 7*24)

	v.SetDefault("credentials.type", CredentialsTypeRedis)
	v.SetDefault("credentials.redis.addresses", []string{"localhost:6379"})
	v.SetDefault("credentials.redis.isSentinel", false)
	v.SetDefault("credentials.redis.password", "")
	v.SetDefault("credentials.redis.masterName", "")
	v.SetDefault("credentials.redis.dbIndex", 0)
	v.SetDefault("credentials.redis.keyPrefix", "rentals")
	v.SetDefault("credentials.disk.path", "/var/lib/rentals-gateway/credentials")
	v.SetDefault("credentials.encryption.enabled", false)
	v.SetDefault("credentials.encryption.secretKey", "")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rateLimits.enabled", false)
	v.SetDefault("server.rateLimits.rate", 20)
	v.SetDefault("server.rateLimits.burst", 40)
	v.SetDefault("server.allowOrigin", []string{})
	v.SetDefault("server.loginRedirectPath", "/login")
	v.SetDefault("server.bodyLimit", "10M")

	v.SetDefault("sessions.idleSessionTTLSeconds", 7*24*60*60)
	v.SetDefault("sessions.maxSessionTTLSeconds", 30*24*60*60)

	v.SetDefault("refresher.enabled", true)
	v.SetDefault("refresher.intervalSeconds", 60)
	v.SetDefault("refresher.expiryMarginSeconds", 300)

	v.SetDefault("monitoring.sentry.enabled", false)
	v.SetDefault("monitoring.sentry.dsn", "")
	v.SetDefault("monitoring.sentry.environment", "")
	v.SetDefault("monitoring.sentry.sampleRate", 0.0)
	v.SetDefault("monitoring.prometheus.enabled", false)
	v.SetDefault("monitoring.prometheus.port", 8765)
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound)
}

func (c *ConfigHandler) merge() error {
	err := c.secretViper.ReadInConfig()
	if err != nil {
		if isNotFound(err) {
			slog.Info("could not find any secret config files - only the public file and environment variables will be used")
			return nil
		}
		return err
	}
	return c.mainViper.MergeConfigMap(c.secretViper.AllSettings())
}

func (c *ConfigHandler) getConfig() (Config, error) {
	var output Config
	err := c.mainViper.ReadInConfig()
	if err != nil {
		if !isNotFound(err) {
			return Config{}, err
		}
		slog.Info("could not find any config files - only defaults and environment variables will be used")
	}
	// the secret config will overwrite anything from the non-secret configuration,
	// the env variables are resolved by viper on top of both
	err = c.merge()
	if err != nil {
		return Config{}, err
	}
	err = c.mainViper.Unmarshal(
		&output,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToSliceHookFunc(","),
				// keep last, it can turn an empty string into nil
				parseStringAsURL(),
			),
		),
	)
	if err != nil {
		return Config{}, err
	}
	err = output.Validate()
	if err != nil {
		return Config{}, err
	}
	return output, nil
}

func (c *ConfigHandler) Config() (Config, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.getConfig()
}

func (c *ConfigHandler) Watch() {
	c.mainViper.WatchConfig()
	c.secretViper.WatchConfig()
}

func parseStringAsURL() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (interface{}, error) {
		// Check that the data is string
		if f.Kind() != reflect.String {
			return data, nil
		}

		// Check that the target type is our custom type
		if t != reflect.TypeOf(url.URL{}) && t != reflect.TypeOf(&url.URL{}) {
			return data, nil
		}

		dataStr, ok := data.(string)
		if !ok {
			return nil, fmt.Errorf("cannot cast URL value to string")
		}
		// An unset URL decodes to a nil pointer, Validate decides if it was required
		if dataStr == "" {
			return nil, nil
		}
		url, err := url.Parse(dataStr)
		if err != nil {
			return nil, err
		}
		return url, nil
	}
}

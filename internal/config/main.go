package config

import "fmt"

type RunningEnvironment string

const (
	Development RunningEnvironment = "development"
	Production  RunningEnvironment = "production"
)

type Config struct {
	RunningEnvironment RunningEnvironment
	DebugMode          bool
	Backend            BackendConfig
	Credentials        CredentialsConfig
	Server             ServerConfig
	Sessions           SessionConfig
	Refresher          RefresherConfig
	Monitoring         MonitoringConfig
}

func (e RunningEnvironment) Validate() error {
	switch e {
	case Development, Production:
		return nil
	default:
		return fmt.Errorf("unknown running environment %q (must be one of %s, %s)", string(e), Development, Production)
	}
}

func (c *Config) Validate() error {
	err := c.RunningEnvironment.Validate()
	if err != nil {
		return err
	}
	err = c.Backend.Validate()
	if err != nil {
		return err
	}
	err = c.Credentials.Validate(c.RunningEnvironment)
	if err != nil {
		return err
	}
	err = c.Server.Validate()
	if err != nil {
		return err
	}
	err = c.Sessions.Validate()
	if err != nil {
		return err
	}
	err = c.Refresher.Validate()
	if err != nil {
		return err
	}
	return nil
}

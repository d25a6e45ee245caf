package config

import "fmt"

const (
	CredentialsTypeMemory string = "memory"
	CredentialsTypeRedis  string = "redis"
	CredentialsTypeDisk   string = "disk"
)

type RedisConfig struct {
	Addresses  []string
	IsSentinel bool
	Password   RedactedString
	MasterName string
	DBIndex    int
	KeyPrefix  string
}

type DiskConfig struct {
	Path string
}

type TokenEncryptionConfig struct {
	Enabled   bool
	SecretKey RedactedString
}

type CredentialsConfig struct {
	Type       string
	Redis      RedisConfig
	Disk       DiskConfig
	Encryption TokenEncryptionConfig
}

func (c *CredentialsConfig) Validate(e RunningEnvironment) error {
	switch c.Type {
	case CredentialsTypeMemory:
		if e != Development {
			return fmt.Errorf("credentials type cannot be \"memory\" in production")
		}
	case CredentialsTypeRedis:
		if len(c.Redis.Addresses) == 0 {
			return fmt.Errorf("the redis credentials store requires at least one address")
		}
		if c.Redis.IsSentinel && c.Redis.MasterName == "" {
			return fmt.Errorf("the redis master name is required when using sentinel")
		}
	case CredentialsTypeDisk:
		if c.Disk.Path == "" {
			return fmt.Errorf("the disk credentials store requires a path")
		}
	default:
		return fmt.Errorf("unrecognized credentials type %q", c.Type)
	}
	if c.Encryption.Enabled && len(c.Encryption.SecretKey) != 32 {
		return fmt.Errorf(
			"token encryption key has to be 32 bytes long, the provided one is %d long",
			len(c.Encryption.SecretKey),
		)
	}
	return nil
}

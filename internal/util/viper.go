package util

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of the inspected environment variables.
const EnvPrefix = "LOADRIG"

// InitViper sets up env var handling for a viper instance so every flag can
// also be supplied as LOADRIG_SOME_FLAG.
func InitViper(v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.SetEnvPrefix(EnvPrefix)
	v.SetTypeByDefaultValue(true)
	v.AutomaticEnv()
}

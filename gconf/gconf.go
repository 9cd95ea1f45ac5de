package gconf

import (
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-viper/mapstructure/v2"
	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read by New.
const EnvPrefix = "SUPERPOOL"

// ValidConfiguration is implemented by every configuration section.
type ValidConfiguration interface {
	Validate() error
}

// New returns a configuration reading given file and the environment. An
// empty path means environment only. A path to a missing file is an error.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path == "" {
		return v, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "config file %q: %s", path, err)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(errors.ErrValidation, "read %q: %s", path, err)
	}
	return v, nil
}

// Load decodes the named section into dst and validates the result. Values
// missing from the file, the environment and the defaults keep whatever dst
// already holds.
func Load(v *viper.Viper, section string, dst ValidConfiguration) error {
	// AllSettings merges file, environment and defaults per key, which
	// UnmarshalKey does not do for nested keys.
	raw, _ := v.AllSettings()[strings.ToLower(section)].(map[string]interface{})
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       Hook(),
		WeaklyTypedInput: true,
		Result:           dst,
	})
	if err != nil {
		return errors.Wrapf(errors.ErrHuman, "decoder: %s", err)
	}
	if err := dec.Decode(raw); err != nil {
		return errors.Wrapf(errors.ErrValidation, "section %q: %s", section, err)
	}
	if err := dst.Validate(); err != nil {
		return errors.Wrapf(err, "section %q", section)
	}
	return nil
}

// Hook returns the decode hook used by Load. It converts strings into
// durations, addresses and comma separated lists.
func Hook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		stringToAddress,
	)
}

var addressType = reflect.TypeOf(common.Address{})

func stringToAddress(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != addressType {
		return data, nil
	}
	s := strings.TrimSpace(data.(string))
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return nil, errors.Wrapf(errors.ErrValidation, "invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// SetDefaults declares every value of src as the default of the named
// section. Declared keys can be overridden by environment variables and are
// written out by viper's WriteConfigAs.
func SetDefaults(v *viper.Viper, section string, src interface{}) error {
	var raw map[string]interface{}
	if err := mapstructure.Decode(src, &raw); err != nil {
		return errors.Wrapf(errors.ErrHuman, "defaults of %q: %s", section, err)
	}
	setDefaults(v, section, raw)
	return nil
}

func setDefaults(v *viper.Viper, prefix string, raw map[string]interface{}) {
	for k, val := range raw {
		key := prefix + "." + k
		if nested, ok := val.(map[string]interface{}); ok {
			setDefaults(v, key, nested)
			continue
		}
		v.SetDefault(key, plain(val))
	}
}

// plain returns the value in the form it has in a configuration file.
func plain(val interface{}) interface{} {
	switch val := val.(type) {
	case common.Address:
		if val == (common.Address{}) {
			return ""
		}
		return val.Hex()
	case []common.Address:
		out := make([]string, len(val))
		for i, a := range val {
			out[i] = a.Hex()
		}
		return out
	case time.Duration:
		return val.String()
	}
	return val
}

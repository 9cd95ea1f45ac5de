package gconf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/stretchr/testify/require"
)

type section struct {
	Name    string           `mapstructure:"name"`
	Timeout time.Duration    `mapstructure:"timeout"`
	Account common.Address   `mapstructure:"account"`
	Owners  []common.Address `mapstructure:"owners"`
	Retries int              `mapstructure:"retries"`
	Nested  struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"nested"`
}

func (s *section) Validate() error {
	if s.Retries < 0 {
		return errors.Field("Retries", errors.ErrValidation, "must not be negative")
	}
	return nil
}

func defaults() section {
	s := section{
		Name:    "custody",
		Timeout: 30 * time.Second,
		Retries: 5,
	}
	s.Nested.Path = "/var/lib/superpool"
	return s
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "config.toml", `
[test]
timeout = "2m"
account = "0x9999999999999999999999999999999999999999"
owners = ["0x1111111111111111111111111111111111111111", "0x2222222222222222222222222222222222222222"]

[test.nested]
path = "/tmp/data"
`)
	v, err := New(path)
	require.NoError(t, err)
	require.NoError(t, SetDefaults(v, "test", defaults()))

	var got section
	require.NoError(t, Load(v, "test", &got))
	require.Equal(t, "custody", got.Name)
	require.Equal(t, 2*time.Minute, got.Timeout)
	require.Equal(t, common.HexToAddress("0x9999999999999999999999999999999999999999"), got.Account)
	require.Equal(t, []common.Address{
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
	}, got.Owners)
	require.Equal(t, 5, got.Retries)
	require.Equal(t, "/tmp/data", got.Nested.Path)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("SUPERPOOL_TEST_RETRIES", "9")
	t.Setenv("SUPERPOOL_TEST_TIMEOUT", "3s")
	t.Setenv("SUPERPOOL_TEST_NESTED_PATH", "/srv")

	v, err := New("")
	require.NoError(t, err)
	require.NoError(t, SetDefaults(v, "test", defaults()))

	var got section
	require.NoError(t, Load(v, "test", &got))
	require.Equal(t, 9, got.Retries)
	require.Equal(t, 3*time.Second, got.Timeout)
	require.Equal(t, "/srv", got.Nested.Path)
	require.Equal(t, "custody", got.Name)
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]struct {
		content   string
		wantErr   *errors.Error
		wantField string
	}{
		"malformed address": {
			content: "[test]\naccount = \"0x12\"\n",
			wantErr: errors.ErrValidation,
		},
		"malformed duration": {
			content: "[test]\ntimeout = \"soon\"\n",
			wantErr: errors.ErrValidation,
		},
		"invalid value": {
			content:   "[test]\nretries = -1\n",
			wantErr:   errors.ErrValidation,
			wantField: "Retries",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			v, err := New(writeFile(t, "config.toml", tc.content))
			require.NoError(t, err)
			got := defaults()
			err = Load(v, "test", &got)
			require.True(t, tc.wantErr.Is(err), "%+v", err)
			if tc.wantField != "" {
				require.NotEmpty(t, errors.FieldErrors(err, tc.wantField))
			}
		})
	}
}

func TestMissingFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.toml"))
	require.True(t, errors.ErrNotFound.Is(err), "%+v", err)
}

func TestWriteDefaults(t *testing.T) {
	v, err := New("")
	require.NoError(t, err)
	want := defaults()
	want.Account = common.HexToAddress("0x9999999999999999999999999999999999999999")
	want.Owners = []common.Address{common.HexToAddress("0x1111111111111111111111111111111111111111")}
	require.NoError(t, SetDefaults(v, "test", want))

	path := filepath.Join(t.TempDir(), "written.toml")
	require.NoError(t, v.WriteConfigAs(path))

	reread, err := New(path)
	require.NoError(t, err)
	var got section
	require.NoError(t, Load(reread, "test", &got))
	require.Equal(t, want, got)
}

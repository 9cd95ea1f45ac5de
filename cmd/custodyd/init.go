package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/crypto"
	"github.com/rafamiziara/superpool-sub007/errors"
)

const defaultConfigPath = "custodyd.toml"

// InitOptions holds the flags of the init command.
type InitOptions struct {
	*RootOptions
	Owners    int
	Threshold uint32
	Force     bool
}

// NewInitCommand returns the command writing a configuration for a fresh
// dev chain. Owner keys and their API keys are generated and printed.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a development configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, opts)
		},
	}
	cmd.Flags().IntVar(&opts.Owners, "owners", 3, "number of generated owners")
	cmd.Flags().Uint32Var(&opts.Threshold, "threshold", 2, "signatures required to execute")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite an existing file")
	return cmd
}

func runInit(cmd *cobra.Command, opts *InitOptions) error {
	path := opts.ConfigPath
	if path == "" {
		path = defaultConfigPath
	}
	if _, err := os.Stat(path); err == nil && !opts.Force {
		return errors.Wrapf(errors.ErrAlreadyExists, "%s, use --force to overwrite", path)
	}
	if opts.Owners < 1 {
		return errors.Wrap(errors.ErrValidation, "at least one owner is required")
	}

	conf := DefaultConfiguration()
	conf.Chain.Dev.Threshold = opts.Threshold
	conf.Chain.Dev.Balance = "1000000000000000000"
	conf.Multisig.MultiSend = conf.Chain.Dev.MultiSend

	type owner struct {
		key    *crypto.Secp256k1
		apiKey string
	}
	owners := make([]owner, opts.Owners)
	authKeys := make([]map[string]interface{}, opts.Owners)
	for i := range owners {
		k, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		owners[i] = owner{key: k, apiKey: uuid.NewString()}
		conf.Chain.Dev.Owners = append(conf.Chain.Dev.Owners, k.Address())
		authKeys[i] = map[string]interface{}{
			"key":     owners[i].apiKey,
			"address": k.Address().Hex(),
		}
	}
	if err := conf.Chain.Validate(); err != nil {
		return err
	}

	v := viper.New()
	if err := declareDefaults(v, conf); err != nil {
		return err
	}
	v.Set("auth.keys", authKeys)
	if err := v.WriteConfigAs(path); err != nil {
		return errors.Wrapf(errors.ErrDatabase, "write %s: %s", path, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "custodyd %s: configuration written to %s\n\n", superpool.Version(), path)
	fmt.Fprintf(out, "custody account %s, %d of %d signatures required\n\n",
		conf.Chain.Dev.Account.Hex(), opts.Threshold, opts.Owners)
	for _, o := range owners {
		fmt.Fprintf(out, "owner    %s\nkey      %s\napi key  %s\n\n", o.key.Address().Hex(), o.key.Hex(), o.apiKey)
	}
	return nil
}

// NewVersionCommand returns the command printing the version.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), superpool.Version())
		},
	}
}

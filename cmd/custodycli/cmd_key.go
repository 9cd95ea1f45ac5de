package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/api"
	"github.com/rafamiziara/superpool-sub007/crypto"
	"github.com/rafamiziara/superpool-sub007/errors"
)

func defaultKeyPath() string {
	return env("CUSTODYCLI_PRIV_KEY", os.Getenv("HOME")+"/.custody.priv.key")
}

func cmdKeygen(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Generate a new secp256k1 private key and print its address.

When successful a new file with the hex encoded private key is created. This
command fails if the private key file already exists.
`)
		fl.PrintDefaults()
	}
	var (
		keyPathFl = fl.String("key", defaultKeyPath(),
			"Path to the private key file. You can use CUSTODYCLI_PRIV_KEY environment variable to set it.")
	)
	fl.Parse(args)

	if _, err := os.Stat(*keyPathFl); !os.IsNotExist(err) {
		// Never overwrite a key. It must be deleted by hand first.
		return errors.Wrapf(errors.ErrAlreadyExists, "private key file %q, delete this file and try again", *keyPathFl)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	if err := os.WriteFile(*keyPathFl, []byte(key.Hex()), 0600); err != nil {
		return errors.Wrapf(errors.ErrHuman, "cannot write private key: %s", err)
	}
	_, err = fmt.Fprintln(output, key.Address().Hex())
	return err
}

func cmdKeyaddr(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Print out the address of your private key.
`)
		fl.PrintDefaults()
	}
	var (
		keyPathFl = fl.String("key", defaultKeyPath(),
			"Path to the private key file. You can use CUSTODYCLI_PRIV_KEY environment variable to set it.")
	)
	fl.Parse(args)

	key, err := readKey(*keyPathFl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(output, key.Address().Hex())
	return err
}

func readKey(path string) (*crypto.Secp256k1, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "cannot read private key file: %s", err)
	}
	return crypto.KeyFromHex(strings.TrimSpace(string(raw)))
}

// signedDocument is the output of the sign command and the input of the
// add-signature command.
type signedDocument struct {
	ID superpool.TxID `json:"id"`
	api.SignatureRequest
}

func cmdSign(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Sign a transaction id with your private key.

The id is taken from the -id flag or from the JSON document read from the
input, for example the output of the propose command. The signature is
written as a JSON document that the add-signature command reads.
`)
		fl.PrintDefaults()
	}
	var (
		keyPathFl = fl.String("key", defaultKeyPath(),
			"Path to the private key file. You can use CUSTODYCLI_PRIV_KEY environment variable to set it.")
		idFl      = fl.String("id", "", "Transaction id. Read from the input when not given.")
		ethSignFl = fl.Bool("eth-sign", false, "Sign the id prefixed with the Ethereum signed message header, as wallets do.")
	)
	fl.Parse(args)

	key, err := readKey(*keyPathFl)
	if err != nil {
		return err
	}
	id, err := readID(input, *idFl)
	if err != nil {
		return err
	}
	if *ethSignFl {
		key = key.EthSign()
	}
	sig, err := key.Sign(id)
	if err != nil {
		return err
	}
	return writeJSON(output, signedDocument{
		ID: id,
		SignatureRequest: api.SignatureRequest{
			Signer:    key.Address().Hex(),
			Signature: hexutil.Encode(sig),
		},
	})
}

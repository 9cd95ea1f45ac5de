package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/rafamiziara/superpool-sub007/x/batch"
)

func cmdEncodeBatch(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Read a JSON list of sub operations from the input and print the hex encoded
multiSend(bytes) call data executing them.
`)
		fl.PrintDefaults()
	}
	var (
		payloadFl = fl.Bool("payload", false, "Print the packed payload instead of the call data.")
	)
	fl.Parse(args)

	var ops []batch.SubOperation
	if err := json.NewDecoder(input).Decode(&ops); err != nil {
		return errors.Wrapf(errors.ErrValidation, "cannot read sub operations: %s", err)
	}
	encode := batch.EncodeCall
	if *payloadFl {
		encode = batch.Encode
	}
	raw, err := encode(ops)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(output, hexutil.Encode(raw))
	return err
}

func cmdDecodeBatch(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Decode hex encoded multiSend(bytes) call data into a JSON list of sub
operations. The data is taken from the -data flag or read from the input.
`)
		fl.PrintDefaults()
	}
	var (
		dataFl    = fl.String("data", "", "Hex encoded data. Read from the input when not given.")
		payloadFl = fl.Bool("payload", false, "Decode a packed payload instead of call data.")
	)
	fl.Parse(args)

	encoded := *dataFl
	if encoded == "" {
		raw, err := io.ReadAll(input)
		if err != nil {
			return errors.Wrapf(errors.ErrHuman, "cannot read input: %s", err)
		}
		encoded = strings.TrimSpace(string(raw))
	}
	data, err := superpool.ParseHexBytes(encoded)
	if err != nil {
		return err
	}
	decode := batch.DecodeCall
	if *payloadFl {
		decode = batch.Decode
	}
	ops, err := decode(data)
	if err != nil {
		return err
	}
	return writeJSON(output, ops)
}

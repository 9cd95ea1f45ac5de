package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/api"
	"github.com/rafamiziara/superpool-sub007/client"
	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/rafamiziara/superpool-sub007/x/batch"
)

func cmdPropose(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Propose a transaction executed by the custody account. The created proposal
is written as a JSON document.
`)
		fl.PrintDefaults()
	}
	var (
		newClient = flClient(fl)
		toFl      = fl.String("to", "", "Recipient address.")
		valueFl   = fl.String("value", "0", "Amount of wei transferred.")
		dataFl    = fl.String("data", "", "Hex encoded call data.")
		opFl      = flOperation(fl, "operation", "call", "Either call or delegate_call.")
		descFl    = fl.String("description", "", "Human readable description of the transaction.")
		metaFl    = flMetadata(fl, "meta", "Metadata as key=value. Can be repeated.")
	)
	fl.Parse(args)

	req := api.ProposeRequest{
		To:          *toFl,
		Value:       *valueFl,
		Operation:   *opFl,
		Description: *descFl,
	}
	if *dataFl != "" {
		data, err := superpool.ParseHexBytes(*dataFl)
		if err != nil {
			return errors.Field("data", err, "invalid")
		}
		req.Data = data
	}
	if len(metaFl) > 0 {
		req.Metadata = metaFl
	}
	p, err := newClient().Propose(context.Background(), req)
	if err != nil {
		return err
	}
	return writeJSON(output, p)
}

func cmdProposeBatch(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Propose a batch of sub operations executed atomically through the multi send
contract. Sub operations are read from the input as a JSON list, for example
the output of the decode-batch command.
`)
		fl.PrintDefaults()
	}
	var (
		newClient = flClient(fl)
		descFl    = fl.String("description", "", "Human readable description of the batch.")
		metaFl    = flMetadata(fl, "meta", "Metadata as key=value. Can be repeated.")
	)
	fl.Parse(args)

	var ops []batch.SubOperation
	if err := json.NewDecoder(input).Decode(&ops); err != nil {
		return errors.Wrapf(errors.ErrValidation, "cannot read sub operations: %s", err)
	}
	req := api.ProposeBatchRequest{Operations: ops, Description: *descFl}
	if len(metaFl) > 0 {
		req.Metadata = metaFl
	}
	p, err := newClient().ProposeBatch(context.Background(), req)
	if err != nil {
		return err
	}
	return writeJSON(output, p)
}

func cmdEmergency(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Propose an emergency pause of given contract.
`)
		fl.PrintDefaults()
	}
	var (
		newClient = flClient(fl)
		targetFl  = fl.String("target", "", "Address of the contract to pause.")
		reasonFl  = fl.String("reason", "", "Why the contract must be paused.")
	)
	fl.Parse(args)

	p, err := newClient().Emergency(context.Background(), api.EmergencyRequest{
		Target: *targetFl,
		Reason: *reasonFl,
	})
	if err != nil {
		return err
	}
	return writeJSON(output, p)
}

func cmdAddSignature(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Add an owner signature to a pending transaction.

Unless all of -id, -signer and -signature are given, the signature is read
from the input as written by the sign command.
`)
		fl.PrintDefaults()
	}
	var (
		newClient = flClient(fl)
		idFl      = fl.String("id", "", "Transaction id.")
		signerFl  = fl.String("signer", "", "Address of the signing owner.")
		sigFl     = fl.String("signature", "", "Hex encoded 65 byte signature.")
	)
	fl.Parse(args)

	var doc signedDocument
	if *idFl != "" && *signerFl != "" && *sigFl != "" {
		id, err := superpool.ParseTxID(*idFl)
		if err != nil {
			return err
		}
		doc.ID = id
		doc.Signer = *signerFl
		doc.Signature = *sigFl
	} else if err := json.NewDecoder(input).Decode(&doc); err != nil {
		return errors.Wrapf(errors.ErrValidation, "cannot read signature: %s", err)
	}

	res, err := newClient().AddSignature(context.Background(), doc.ID, doc.SignatureRequest)
	if err != nil {
		return err
	}
	return writeJSON(output, struct {
		ID superpool.TxID `json:"id"`
		*api.SignatureView
	}{ID: doc.ID, SignatureView: res})
}

func cmdExecute(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Submit a fully signed transaction to the chain and wait for its receipt. The
id is taken from the -id flag or from the JSON document read from the input.
`)
		fl.PrintDefaults()
	}
	var (
		newClient = flClient(fl)
		idFl      = fl.String("id", "", "Transaction id. Read from the input when not given.")
	)
	fl.Parse(args)

	id, err := readID(input, *idFl)
	if err != nil {
		return err
	}
	res, err := newClient().Execute(context.Background(), id)
	if res != nil {
		// A reverted execution still carries its receipt.
		if werr := writeJSON(output, res); werr != nil {
			return errors.Append(err, werr)
		}
	}
	return err
}

func cmdReconcile(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Refresh the status of an executing transaction from the chain.
`)
		fl.PrintDefaults()
	}
	var (
		newClient = flClient(fl)
		idFl      = fl.String("id", "", "Transaction id. Read from the input when not given.")
	)
	fl.Parse(args)

	id, err := readID(input, *idFl)
	if err != nil {
		return err
	}
	rec, err := newClient().Reconcile(context.Background(), id)
	if err != nil {
		return err
	}
	return writeJSON(output, rec)
}

func cmdStatus(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Print the full transaction record.
`)
		fl.PrintDefaults()
	}
	var (
		newClient = flClient(fl)
		idFl      = fl.String("id", "", "Transaction id. Read from the input when not given.")
	)
	fl.Parse(args)

	id, err := readID(input, *idFl)
	if err != nil {
		return err
	}
	rec, err := newClient().Status(context.Background(), id)
	if err != nil {
		return err
	}
	return writeJSON(output, rec)
}

func cmdList(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
List transaction records, newest first.
`)
		fl.PrintDefaults()
	}
	var (
		newClient   = flClient(fl)
		statusFl    = fl.String("status", "", "Only records with this status.")
		createdByFl = fl.String("created-by", "", "Only records proposed by this address.")
		pageFl      = fl.Int("page", 0, "Page number, starting at 1.")
		limitFl     = fl.Int("limit", 0, "Page size.")
	)
	fl.Parse(args)

	list, err := newClient().List(context.Background(), client.ListParams{
		Status:    *statusFl,
		CreatedBy: *createdByFl,
		Page:      *pageFl,
		Limit:     *limitFl,
	})
	if err != nil {
		return err
	}
	return writeJSON(output, list)
}

func cmdInfo(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Print the service version and the custody account configuration.
`)
		fl.PrintDefaults()
	}
	newClient := flClient(fl)
	fl.Parse(args)

	info, err := newClient().Info(context.Background())
	if err != nil {
		return err
	}
	return writeJSON(output, info)
}

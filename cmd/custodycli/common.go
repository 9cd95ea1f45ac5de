package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/client"
	"github.com/rafamiziara/superpool-sub007/errors"
)

// env returns the value of an environment variable if provided (even if empty)
// or a fallback value.
func env(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return fallback
}

// flClient registers the flags needed to reach the API and returns a
// function building the client once the flags are parsed.
func flClient(fl *flag.FlagSet) func() *client.Client {
	var (
		apiURL = fl.String("api", env("CUSTODYCLI_API", "http://127.0.0.1:8000"),
			"Address of the custody API. You can use CUSTODYCLI_API environment variable to set it.")
		apiKey = fl.String("auth", env("CUSTODYCLI_API_KEY", ""),
			"API key sent as a bearer token. You can use CUSTODYCLI_API_KEY environment variable to set it.")
	)
	return func() *client.Client {
		return client.New(*apiURL, *apiKey)
	}
}

// idDocument is the part of every JSON output that identifies a record.
type idDocument struct {
	ID superpool.TxID `json:"id"`
}

// readID returns the transaction id given with a flag or, when the flag is
// empty, read from the JSON document on the input.
func readID(input io.Reader, flagVal string) (superpool.TxID, error) {
	if flagVal != "" {
		return superpool.ParseTxID(flagVal)
	}
	var doc idDocument
	if err := json.NewDecoder(input).Decode(&doc); err != nil {
		return superpool.TxID{}, errors.Wrapf(errors.ErrValidation, "no -id flag and cannot read id from input: %s", err)
	}
	if doc.ID == (superpool.TxID{}) {
		return superpool.TxID{}, errors.Field("id", errors.ErrValidation, "required")
	}
	return doc.ID, nil
}

// writeJSON writes an indented JSON document followed by a new line.
func writeJSON(output io.Writer, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "\t")
	if err != nil {
		return errors.Wrapf(errors.ErrHuman, "cannot serialize: %s", err)
	}
	_, err = fmt.Fprintf(output, "%s\n", raw)
	return err
}

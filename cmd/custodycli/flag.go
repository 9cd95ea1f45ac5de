package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	superpool "github.com/rafamiziara/superpool-sub007"
)

// flOperation returns a value that is being initialized with given default
// value and optionally overwritten by a command line argument if provided.
// If given value cannot be deserialized, process is terminated.
func flOperation(fl *flag.FlagSet, name, defaultVal, usage string) *superpool.Operation {
	op, err := superpool.ParseOperation(defaultVal)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot parse %q operation flag value. %s", name, err)
		os.Exit(2)
	}
	fo := flagOperation{op: &op}
	fl.Var(fo, name, usage)
	return &op
}

type flagOperation struct {
	op *superpool.Operation
}

func (f flagOperation) String() string {
	if f.op == nil {
		return ""
	}
	return f.op.String()
}

func (f flagOperation) Set(raw string) error {
	op, err := superpool.ParseOperation(raw)
	if err != nil {
		return err
	}
	*f.op = op
	return nil
}

// flMetadata returns a map filled by repeated key=value flags.
func flMetadata(fl *flag.FlagSet, name, usage string) map[string]string {
	m := make(map[string]string)
	fl.Var(flagMetadata(m), name, usage)
	return m
}

type flagMetadata map[string]string

func (m flagMetadata) String() string {
	pairs := make([]string, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (m flagMetadata) Set(raw string) error {
	k, v, ok := strings.Cut(raw, "=")
	if !ok || k == "" {
		return fmt.Errorf("want key=value, got %q", raw)
	}
	m[k] = v
	return nil
}

/*
Command custodycli is a command line client of the custody service.

Each command does one thing. Commands that need a transaction id accept it
with the -id flag or read it from the JSON document on their input, so they
can be combined using a unix pipe:

	$ custodycli propose -to 0x... -value 100 -description payout \
	    | custodycli sign \
	    | custodycli add-signature
*/
package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	superpool "github.com/rafamiziara/superpool-sub007"
)

// commands is a register of all available commands. The name is matched
// with the first program argument.
//
// A command function reads only from given input and writes only to given
// output. Arguments are the command line arguments without the program and
// the command name and should be parsed using the flag package.
var commands = map[string]func(input io.Reader, output io.Writer, args []string) error{
	"add-signature": cmdAddSignature,
	"decode-batch":  cmdDecodeBatch,
	"emergency":     cmdEmergency,
	"encode-batch":  cmdEncodeBatch,
	"execute":       cmdExecute,
	"info":          cmdInfo,
	"keyaddr":       cmdKeyaddr,
	"keygen":        cmdKeygen,
	"list":          cmdList,
	"propose":       cmdPropose,
	"propose-batch": cmdProposeBatch,
	"reconcile":     cmdReconcile,
	"sign":          cmdSign,
	"status":        cmdStatus,
	"version":       cmdVersion,
}

func main() {
	if len(os.Args) == 1 {
		fmt.Fprintf(os.Stderr, "%s is a command line client of the custody service.\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage: %s <command> [<flags>]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nAvailable commands are:\n\t%s\n", strings.Join(availableCmds(), "\n\t"))
		fmt.Fprintf(os.Stderr, "Run '%s <command> -help' to learn more about each command.\n", os.Args[0])
		os.Exit(2)
	}
	run, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "\nAvailable commands are:\n\t%s\n", strings.Join(availableCmds(), "\n\t"))
		os.Exit(2)
	}

	if err := run(os.Stdin, os.Stdout, os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func availableCmds() []string {
	available := make([]string, 0, len(commands))
	for name := range commands {
		available = append(available, name)
	}
	sort.Strings(available)
	return available
}

func cmdVersion(in io.Reader, out io.Writer, args []string) error {
	_, err := fmt.Fprintln(out, superpool.Version())
	return err
}

package superpool

import "fmt"

// Release of the coordinator. The wire formats of records and of the HTTP
// API change only together with Maj.
const (
	Maj    = 0
	Min    = 3
	Fix    = 0
	Suffix = "-dev"
)

var version = fmt.Sprintf("v%d.%d.%d%s", Maj, Min, Fix, Suffix)

// GitCommit is set at build time:
//
//	go build -ldflags "-X github.com/rafamiziara/superpool-sub007.GitCommit=$(git rev-parse --short HEAD)"
var GitCommit = ""

// Version returns the release, followed by the commit when known. It is
// reported by GET /info and by the version commands.
func Version() string {
	if GitCommit == "" {
		return version
	}
	return version + " " + GitCommit
}

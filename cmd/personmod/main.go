// Command personmod hosts the PersonRegistry module.
package main

import (
	"os"

	"github.com/roach88/personmod/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}

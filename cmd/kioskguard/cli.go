package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		usage(args, stderr)
		return 1
	}

	switch args[1] {
	case "keygen":
		return runKeygen(args[2:], stdout, stderr)
	case "migrate":
		return runMigrate(args[2:], stdout, stderr)
	case "bootstrap":
		return runBootstrap(args[2:], stdout, stderr)
	case "license":
		if len(args) >= 3 {
			switch args[2] {
			case "create":
				return runLicenseCreate(args[3:], stdout, stderr)
			case "list":
				return runLicenseList(args[3:], stdout, stderr)
			case "validate":
				return runLicenseValidate(args[3:], stdout, stderr)
			}
		}
	}

	usage(args, stderr)
	return 1
}

func usage(args []string, w io.Writer) {
	name := "kioskguard"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(w, "usage:\n")
	fmt.Fprintf(w, "  %s keygen [--count <n>]\n", name)
	fmt.Fprintf(w, "  %s migrate\n", name)
	fmt.Fprintf(w, "  %s bootstrap --email <email> --password <password>\n", name)
	fmt.Fprintf(w, "  %s license create [--issuer-email <email>] [--expires-in <duration>]\n", name)
	fmt.Fprintf(w, "  %s license list --issuer-email <email> [--json]\n", name)
	fmt.Fprintf(w, "  %s license validate --key <license-key> --fingerprint <fingerprint>\n", name)
	fmt.Fprintf(w, "\nlicense, bootstrap and migrate read POSTGRES_DSN and the other server settings from the environment.\n")
}

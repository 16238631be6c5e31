// Package main provides a one-shot utility for admin grant keys and tokens.
//
// With -keygen it emits the asymmetric keypair used by admin grant checks;
// otherwise it mints a short-lived grant for the given subject.
package main

import (
	"flag"
	"os"

	admingrantcmd "github.com/jsantora/replycore/internal/cmd/admingrant"
	"github.com/jsantora/replycore/internal/platform/config"
)

func main() {
	cfg, err := admingrantcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := admingrantcmd.Run(os.Stdout, nil, cfg); err != nil {
		config.Exitf("admin grant: %v", err)
	}
}

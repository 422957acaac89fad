// Package main implements the rcpilot entry point: the pilot-input service
// and its bench tools.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

// Version is the rcpilot release.
const Version = "1.0.0"

func main() {
	app := cli.NewApp()
	app.Name = "rcpilot"
	app.Usage = "Percentage stick and RC override control for MAVLink and SITL vehicles"
	app.Version = Version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "YAML configuration file (also read from $RCPILOT_CONFIG)",
		},
	}
	app.Commands = commands

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "rcpilot: %v\n", err)
		os.Exit(1)
	}
}

var commands = []cli.Command{
	{
		Name:  "run",
		Usage: "Start the pilot-input service",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "link",
				Usage: "Override the link kind (sitl or mavlink)",
			},
			cli.StringFlag{
				Name:  "api",
				Usage: "Override the API listen address; \"off\" disables the API",
			},
			cli.BoolFlag{
				Name:  "no-console",
				Usage: "Do not read commands from stdin",
			},
			cli.BoolFlag{
				Name:  "debug, d",
				Usage: "Echo every computed stick value",
			},
		},
		Action: runCommand,
	},
	{
		Name:      "send",
		Usage:     "Send one command line to a running service",
		ArgsUsage: "<command> [args...]",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "addr, a",
				Value: "http://127.0.0.1:8000",
				Usage: "Base URL of the service",
			},
			cli.StringFlag{
				Name:   "token, t",
				Usage:  "Bearer token",
				EnvVar: "RCPILOT_TOKEN",
			},
			cli.DurationFlag{
				Name:  "timeout",
				Value: defaultSendTimeout,
				Usage: "Request timeout",
			},
		},
		Action: sendCommand,
	},
	{
		Name:  "sink",
		Usage: "Print raw SITL override frames received on a UDP port",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "listen, l",
				Value: "127.0.0.1:5501",
				Usage: "UDP address to listen on",
			},
		},
		Action: sinkCommand,
	},
}

package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ravenabot/ravena/internal/mcp"
)

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the status API of a running instance as MCP tools over stdio",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api",
				Usage:   "Base `URL` of the ravena status API",
				EnvVars: []string{"RAVENA_API_URL"},
				Value:   "http://127.0.0.1:8080",
			},
		},
		Action: func(c *cli.Context) error {
			// stdout carries the protocol
			fmt.Fprintf(os.Stderr, "[ravena-mcp] using API at %s\n", c.String("api"))
			server := mcp.NewServer(mcp.NewClient(c.String("api")), version)
			return server.Run(c.Context)
		},
	}
}

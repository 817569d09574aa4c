package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/ravenabot/ravena/internal/biz/domain"
	"github.com/ravenabot/ravena/internal/conf"
	"github.com/ravenabot/ravena/internal/server"
)

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Send a text message through one configured session",
		ArgsUsage: "<chat_id> <message>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "instance",
				Usage: "Session `ID` to send from, defaults to the first configured one",
			},
			&cli.StringSliceFlag{
				Name:  "mention",
				Usage: "Open id to @mention, repeatable",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return cli.ShowSubcommandHelp(c)
			}
			chatID := c.Args().Get(0)
			text := strings.Join(c.Args().Slice()[1:], " ")

			cfg := conf.LoadFromEnv()
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			inst := cfg.Instances[0]
			if id := c.String("instance"); id != "" {
				found := false
				for _, candidate := range cfg.Instances {
					if candidate.ID == id {
						inst, found = candidate, true
						break
					}
				}
				if !found {
					return fmt.Errorf("unknown instance %q", id)
				}
			}

			log := newLogger(cfg.Debug, cfg.LogLevel)
			sess := server.NewLarkSession(
				domain.SessionInfo{ID: inst.ID, PhoneNumber: inst.Phone, Aliases: inst.Aliases},
				server.LarkConfig{AppID: inst.AppID, AppSecret: inst.AppSecret},
				log,
			)
			msgID, err := sess.SendMessage(c.Context, chatID, domain.TextContent(text), domain.SendOptions{Mentions: c.StringSlice("mention")})
			if err != nil {
				return err
			}
			fmt.Printf("Message sent: %s\n", msgID)
			return nil
		},
	}
}

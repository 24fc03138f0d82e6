package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/anicoll/onvif-integration/cmd"
)

func main() {
	app := &cli.App{
		Name:   "onvif-bridge",
		Usage:  "bridges onvif camera events onto mqtt",
		Action: cmd.OnvifCommand,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				EnvVars: []string{"CONFIG_PATH"},
				Value:   "config.yml",
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "status-addr",
				EnvVars: []string{"STATUS_ADDR"},
				Value:   "0.0.0.0:8000",
			},
			&cli.StringFlag{
				Name:    "resubscribe-cron",
				EnvVars: []string{"RESUBSCRIBE_CRON"},
				Value:   "0 */6 * * *",
			},
			&cli.DurationFlag{
				Name:    "debounce-window",
				EnvVars: []string{"DEBOUNCE_WINDOW"},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

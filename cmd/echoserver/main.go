// Copyright (c) 2023 Paweł Gaczyński
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command echoserver is a minimal \r\n-delimited text echo server built on
// top of the reactor package.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	reactor "github.com/jandudek/reactor"
	"github.com/jandudek/reactor/logger"
)

const defaultPort = 8080

var loggerLevelFlags = []string{
	"debug", "info", "warn", "error", "fatal", "panic", "disabled", "trace",
}

func loggerFlagToLevel(flag string) zerolog.Level {
	switch flag {
	case "debug":
		return logger.DebugLevel
	case "info":
		return logger.InfoLevel
	case "warn":
		return logger.WarnLevel
	case "error":
		return logger.ErrorLevel
	case "fatal":
		return logger.FatalLevel
	case "panic":
		return logger.PanicLevel
	case "disabled":
		return logger.Disabled
	case "trace":
		return logger.TraceLevel
	default:
		return logger.NoLevel
	}
}

type cmdConfig struct {
	port         int
	loggerLevel  string
	prettyLogger bool
}

func main() {
	config := &cmdConfig{}

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "port",
			Value:       defaultPort,
			Usage:       "listen TCP port",
			Destination: &config.port,
		},
		&cli.StringFlag{
			Name:        "loggerLevel",
			Value:       "info",
			Usage:       "logger level",
			Destination: &config.loggerLevel,
			Action: func(ctx *cli.Context, v string) error {
				for _, allowed := range loggerLevelFlags {
					if allowed == v {
						return nil
					}
				}

				return fmt.Errorf("possible values for logger level: %v", loggerLevelFlags)
			},
		},
		&cli.BoolFlag{
			Name:        "prettyLogger",
			Value:       false,
			Usage:       "print prettier logs",
			Destination: &config.prettyLogger,
		},
	}

	var endpoint *reactor.Endpoint

	app := &cli.App{
		Name:  "echoserver",
		Usage: "reactor \\r\\n-delimited echo server",
		Flags: flags,
		Action: func(*cli.Context) error {
			r, err := reactor.NewReactor(
				reactor.WithLoggerLevel(loggerFlagToLevel(config.loggerLevel)),
				reactor.WithPrettyLogger(config.prettyLogger),
			)
			if err != nil {
				return fmt.Errorf("new reactor: %w", err)
			}

			endpoint, err = r.NewEndpoint(config.port, onInit, onProcess, onCleanup)
			if err != nil {
				return fmt.Errorf("new endpoint: %w", err)
			}

			fmt.Printf("echoserver listening on :%d\n", config.port)

			select {}
		},
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigs
		fmt.Println("shutting down...")

		if endpoint != nil {
			endpoint.Close()
		}

		os.Exit(0)
	}()

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func onInit(c *reactor.Connection) {
	fmt.Printf("connected: fd=%d remote=%s\n", c.Fd(), c.RemoteAddr())
}

func onProcess(c *reactor.Connection) {
	for {
		msg, keepReading := c.ReadString("\r\n")
		if !keepReading {
			return
		}

		c.Enqueue([]byte(msg))
	}
}

func onCleanup(c *reactor.Connection) {
	fmt.Printf("disconnected: fd=%d\n", c.Fd())
}

/*
	Copyright NetFoundry Inc.

	Licensed under the Apache License, Version 2.0 (the "License");
	you may not use this file except in compliance with the License.
	You may obtain a copy of the License at

	https://www.apache.org/licenses/LICENSE-2.0

	Unless required by applicable law or agreed to in writing, software
	distributed under the License is distributed on an "AS IS" BASIS,
	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
	See the License for the specific language governing permissions and
	limitations under the License.
*/

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/michaelquigley/pfxlog"
	"github.com/openziti/xapp/fullstack"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "xapp",
		Short:        "xapp development server",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd())
	return root
}

type serveOptions struct {
	configPath string
	envFile    string
}

func newServeCmd() *cobra.Command {
	options := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serve the welcome application on the bind points of the web section",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return options.run(ctx)
		},
	}

	cmd.Flags().StringVarP(&options.configPath, "config", "c", "xapp.yml", "path of the YAML configuration file")
	cmd.Flags().StringVar(&options.envFile, "env-file", fullstack.DefaultEnvFile, "optional file of XAPP_* environment variables")

	return cmd
}

func (options *serveOptions) run(ctx context.Context) error {
	cfg, err := fullstack.LoadConfig(options.configPath, options.envFile)
	if err != nil {
		return err
	}

	stack, err := newWelcomeStack(cfg, fullstack.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if err := stack.Close(); err != nil {
			pfxlog.Logger().WithError(err).Warn("error closing application")
		}
	}()

	instance, err := stack.Instance()
	if err != nil {
		return err
	}

	if err := instance.Run(); err != nil {
		return err
	}

	<-ctx.Done()
	pfxlog.Logger().Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	instance.Shutdown(shutdownCtx)

	return nil
}

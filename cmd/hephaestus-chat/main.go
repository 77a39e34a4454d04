// Command hephaestus-chat sends one message to a gateway and prints the answer
// as it streams in.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mozaika228/hephaestus/client"
	"github.com/mozaika228/hephaestus/services/chat"
	"github.com/mozaika228/hephaestus/services/providers"
	"github.com/mozaika228/hephaestus/services/relay"
	"github.com/spf13/cobra"
)

type options struct {
	url      string
	token    string
	provider string
	fileID   string
	single   bool
}

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	opts := options{
		url:   envOr("HEPHAESTUS_URL", "http://localhost:4000"),
		token: os.Getenv("HEPHAESTUS_TOKEN"),
	}

	cmd := &cobra.Command{
		Use:          "hephaestus-chat [message]",
		Short:        "Send a message to a Hephaestus gateway",
		Long:         "Send a message to a Hephaestus gateway. The message is read from the arguments, or from stdin when none are given.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			if strings.TrimSpace(message) == "" {
				raw, err := io.ReadAll(stdin)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				message = string(raw)
			}
			if strings.TrimSpace(message) == "" {
				return errors.New("message is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, opts, chat.Request{
				Message:  strings.TrimSpace(message),
				Provider: opts.provider,
				FileID:   opts.fileID,
			}, stdout, stderr)
		},
	}
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.StringVar(&opts.url, "url", opts.url, "gateway base URL (HEPHAESTUS_URL)")
	flags.StringVar(&opts.token, "token", opts.token, "bearer token (HEPHAESTUS_TOKEN)")
	flags.StringVarP(&opts.provider, "provider", "p", "", "requested provider: openai, azure, local or custom")
	flags.StringVar(&opts.fileID, "file-id", "", "provider file id to attach")
	flags.BoolVar(&opts.single, "single", false, "wait for the full answer instead of streaming")

	return cmd
}

func run(ctx context.Context, opts options, req chat.Request, stdout, stderr io.Writer) error {
	var clientOpts []client.Option
	if opts.token != "" {
		clientOpts = append(clientOpts, client.WithToken(opts.token))
	}
	c, err := client.New(opts.url, clientOpts...)
	if err != nil {
		return err
	}

	if opts.single {
		reply, err := c.Single(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, reply.Text)
		fmt.Fprintf(stderr, "[%s via %s]\n", reply.Route.Intent, reply.Provider)
		return nil
	}

	return stream(ctx, c, req, stdout, stderr)
}

// stream prints coalesced text. An error event is reported after the text
// received before it and makes the command fail.
func stream(ctx context.Context, c *client.Client, req chat.Request, stdout, stderr io.Writer) error {
	printer := relay.NewCoalescer(relay.DefaultFlushInterval, func(text string) {
		fmt.Fprint(stdout, text)
	})
	defer printer.Close()

	var failure *providers.Event
	sink := providers.SinkFunc(func(ev providers.Event) error {
		if ev.Type == providers.EventError {
			e := ev
			failure = &e
		}
		return printer.Send(ev)
	})

	if err := c.Stream(ctx, req, sink); err != nil {
		return err
	}
	printer.Close()
	fmt.Fprintln(stdout)

	if failure != nil {
		fmt.Fprintf(stderr, "error: %s (%s)\n", failure.Message, failure.Code)
		return fmt.Errorf("stream failed: %s", failure.Code)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

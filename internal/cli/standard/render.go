package standard

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ccheshirecat/renderd/internal/cli/client"
)

func newRenderCmd() *cobra.Command {
	var (
		cookies      []string
		cookieString string
		headers      []string
		readySignal  string
		scriptFile   string
		timeout      time.Duration
		output       string
	)

	cmd := &cobra.Command{
		Use:   "render <url>",
		Short: "Render a page and print its HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := apiClient(cmd)
			if err != nil {
				return err
			}

			req := client.RenderRequest{URL: args[0], ReadySignal: readySignal}

			if cookieString != "" && len(cookies) > 0 {
				return fmt.Errorf("--cookie and --cookie-string are mutually exclusive")
			}
			if cookieString != "" {
				raw, err := json.Marshal(cookieString)
				if err != nil {
					return err
				}
				req.Cookies = raw
			} else if len(cookies) > 0 {
				pairs, err := parsePairs(cookies, "cookie")
				if err != nil {
					return err
				}
				raw, err := json.Marshal(pairs)
				if err != nil {
					return err
				}
				req.Cookies = raw
			}

			if len(headers) > 0 {
				pairs, err := parsePairs(headers, "header")
				if err != nil {
					return err
				}
				req.Headers = pairs
			}

			if scriptFile != "" {
				script, err := os.ReadFile(scriptFile)
				if err != nil {
					return fmt.Errorf("read script file: %w", err)
				}
				req.Script = string(script)
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			result, err := api.Render(ctx, req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output != "" && output != "-" {
				if err := os.WriteFile(output, []byte(result.HTML), 0o644); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
			} else {
				fmt.Fprint(out, result.HTML)
			}

			// Keep the summary off stdout so piped HTML stays clean.
			if term.IsTerminal(int(os.Stderr.Fd())) {
				fmt.Fprintf(cmd.ErrOrStderr(), "\nrendered %s: %d bytes in %dms (job %d)\n",
					req.URL, len(result.HTML), result.DurationMS, result.JobID)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&cookies, "cookie", nil, "cookie as name=value (repeatable)")
	cmd.Flags().StringVar(&cookieString, "cookie-string", "", `cookies as a single "k=v; k2=v2" line`)
	cmd.Flags().StringArrayVar(&headers, "header", nil, "extra header as name=value (repeatable)")
	cmd.Flags().StringVar(&readySignal, "ready-signal", "", "resolve when the page logs exactly this value")
	cmd.Flags().StringVar(&scriptFile, "script-file", "", "JavaScript file injected before page scripts run")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "client-side deadline for the whole render")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write HTML to a file instead of stdout")

	return cmd
}

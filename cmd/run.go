// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hexfn/chauffeur/internal/config"
	"github.com/hexfn/chauffeur/internal/devtools"
	"github.com/hexfn/chauffeur/internal/driver"
	"github.com/hexfn/chauffeur/internal/observability"
)

const shutdownGracePeriod = 15 * time.Second

// newRunCmd creates the `run` command: launch a browser, navigate to a URL,
// optionally intercept its traffic, and report what was loaded.
func newRunCmd() *cobra.Command {
	var (
		setHeaders      []string
		setExistHeaders []string
		removeHeaders   []string
		screenshotPath  string
		printLinks      bool
		hold            bool
	)

	runCmd := &cobra.Command{
		Use:   "run [url]",
		Short: "Launch a browser and navigate to a URL",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Flag values override config file and env through viper.
			for flag, key := range map[string]string{
				"browser":    "browser.kind",
				"binary":     "browser.binary",
				"headless":   "browser.headless",
				"port":       "browser.debugging_port",
				"profile":    "browser.profile_dir",
				"proxy":      "browser.proxy",
				"user-agent": "browser.user_agent",
			} {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			rules, err := mergeHeaderRules(cfg.DevTools, setHeaders, setExistHeaders, removeHeaders)
			if err != nil {
				return err
			}

			manager := driver.NewManager(cfg, logger)
			if err := manager.Start(ctx); err != nil {
				return fmt.Errorf("could not start browser: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
				defer cancel()
				if err := manager.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Browser shutdown reported an error.", zap.Error(err))
				}
			}()

			// Interception runs when the config section is enabled or
			// header flags were given on the command line; rules from a
			// disabled section never start it on their own.
			if cfg.DevTools.Enabled || len(rules) > 0 {
				ic := devtools.InterceptFromConfig(cfg.DevTools)
				ic.HeaderRules = rules

				allocCtx, err := manager.AllocatorContext()
				if err != nil {
					return err
				}
				interceptor := devtools.NewManager(allocCtx, ic, logger)
				if err := interceptor.Start(ctx); err != nil {
					return fmt.Errorf("could not start interception: %w", err)
				}
				defer interceptor.Close()
			}

			session, err := manager.NewSession(ctx)
			if err != nil {
				return fmt.Errorf("could not open session: %w", err)
			}

			targetURL := args[0]
			if err := session.Navigate(ctx, targetURL); err != nil {
				return err
			}

			title, err := session.Title(ctx)
			if err != nil {
				return err
			}
			currentURL, err := session.CurrentURL(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", title, currentURL)

			if printLinks {
				links, err := session.Links(ctx)
				if err != nil {
					return err
				}
				for _, link := range links {
					fmt.Fprintln(out, link)
				}
			}

			if screenshotPath != "" {
				png, err := session.Screenshot(ctx)
				if err != nil {
					return err
				}
				if err := os.WriteFile(screenshotPath, png, 0o644); err != nil {
					return fmt.Errorf("could not write screenshot: %w", err)
				}
				logger.Info("Screenshot saved.", zap.String("path", screenshotPath))
			}

			if hold {
				fmt.Fprintln(out, "browser running, press Ctrl+C to stop")
				<-ctx.Done()
			}

			return nil
		},
	}

	flags := runCmd.Flags()
	flags.String("browser", "", "browser kind (chrome, chromium, edge, yandex, brave, firefox)")
	flags.String("binary", "", "explicit browser binary path")
	flags.Bool("headless", true, "run without a visible window")
	flags.Int("port", 0, "DevTools debugging port (0 picks a free one)")
	flags.String("profile", "", "browser profile directory")
	flags.StringArray("proxy", nil, "proxy server (repeatable; one is picked at random)")
	flags.String("user-agent", "", "override the browser user agent")
	flags.StringArrayVar(&setHeaders, "set-header", nil, "always set a request header (name=value, repeatable)")
	flags.StringArrayVar(&setExistHeaders, "set-header-exist", nil, "overwrite a request header only when present (name=value)")
	flags.StringArrayVar(&removeHeaders, "remove-header", nil, "strip a request header (name)")
	flags.StringVar(&screenshotPath, "screenshot", "", "save a viewport screenshot to this file")
	flags.BoolVar(&printLinks, "links", false, "print every link found on the page")
	flags.BoolVar(&hold, "hold", false, "keep the browser open until interrupted")

	return runCmd
}

// mergeHeaderRules layers CLI header flags over the configured rules. Config
// rules apply only when the devtools section is enabled; CLI flags always
// apply and win on conflicting names. Names are canonicalized so a flag and
// a config rule for the same header cannot coexist.
func mergeHeaderRules(
	cfg config.DevToolsConfig,
	set, setExist, remove []string,
) (map[string]devtools.HeaderRule, error) {
	rules := make(map[string]devtools.HeaderRule)
	if cfg.Enabled {
		rules = devtools.InterceptFromConfig(cfg).HeaderRules
	}

	for _, assignment := range set {
		name, value, err := splitHeaderAssignment(assignment)
		if err != nil {
			return nil, err
		}
		rules[name] = devtools.HeaderRule{Value: value, Instruction: devtools.InstructionSet}
	}
	for _, assignment := range setExist {
		name, value, err := splitHeaderAssignment(assignment)
		if err != nil {
			return nil, err
		}
		rules[name] = devtools.HeaderRule{Value: value, Instruction: devtools.InstructionSetExist}
	}
	for _, name := range remove {
		name = devtools.CanonicalHeaderName(name)
		if name == "" {
			return nil, fmt.Errorf("empty header name in --remove-header")
		}
		rules[name] = devtools.HeaderRule{Instruction: devtools.InstructionRemove}
	}

	return rules, nil
}

// splitHeaderAssignment parses "Name=value" into its parts. The name comes
// back canonicalized.
func splitHeaderAssignment(assignment string) (string, string, error) {
	name, value, ok := strings.Cut(assignment, "=")
	name = devtools.CanonicalHeaderName(name)
	if !ok || name == "" {
		return "", "", fmt.Errorf("invalid header assignment %q, expected name=value", assignment)
	}
	return name, value, nil
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}

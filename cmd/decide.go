package cmd

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/crawlscope/internal/curi"
)

type decideFlags struct {
	pathFromSeed string
	via          string
	seed         bool
}

// newDecideCmd creates the 'decide' subcommand, which prints the scope
// verdict for each URI given as an argument or read from stdin.
func newDecideCmd() *cobra.Command {
	f := &decideFlags{}
	cmd := &cobra.Command{
		Use:   "decide [uri...]",
		Short: "Print the scope decision for URIs",
		Long: `Evaluates each URI against the configured rule sequence and prints
"DECISION<TAB>uri". With no arguments, URIs are read from stdin one per
line; blank lines and lines starting with # are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecide(cmd, args, f)
		},
	}
	cmd.Flags().StringVar(&f.pathFromSeed, "path-from-seed", "", "hop path from the seed, e.g. LLX")
	cmd.Flags().StringVar(&f.via, "via", "", "URI the candidate was discovered on")
	cmd.Flags().BoolVar(&f.seed, "seed", false, "treat each URI as a seed")
	return cmd
}

func runDecide(cmd *cobra.Command, args []string, f *decideFlags) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	sc := appInstance.Scope()

	var via *url.URL
	if f.via != "" {
		u, err := curi.ParseURI(f.via)
		if err != nil {
			return fmt.Errorf("parse --via: %w", err)
		}
		via = u
	}

	out := cmd.OutOrStdout()
	decideOne := func(raw string) error {
		u, err := curi.ParseURI(raw)
		if err != nil {
			fmt.Fprintf(out, "INVALID\t%s\t%v\n", raw, err)
			return nil
		}
		c := sc.Model().NewCandidate(u)
		if f.pathFromSeed != "" {
			c.SetPathFromSeed(f.pathFromSeed)
		}
		if via != nil {
			c.SetVia(via)
		}
		if f.seed {
			c.MarkSeed()
		}
		_, err = fmt.Fprintf(out, "%s\t%s\n", sc.Decide(c), c)
		return err
	}

	if len(args) > 0 {
		for _, raw := range args {
			if err := decideOne(raw); err != nil {
				return err
			}
		}
		return nil
	}
	return eachLine(cmd.InOrStdin(), decideOne)
}

func eachLine(r io.Reader, fn func(string) error) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

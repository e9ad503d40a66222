package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gwlsn/codecbench/internal/sweep"
)

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List configured codec profiles and the resulting grid",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "LABEL\tENCODER\tCONTAINER\tRESOLUTIONS\tCLASSIFY")
			for _, p := range cfg.Codecs {
				res := "all"
				if p.Restricted() {
					names := make([]string, len(p.Resolutions))
					for i, r := range p.Resolutions {
						names[i] = r.String()
					}
					res = strings.Join(names, ",")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", p.Label, p.Encoder, p.ContainerExt(), res, p.Classify)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			points, err := sweep.Enumerate(cfg.Codecs, cfg.Resolutions, cfg.Bitrates)
			if err != nil {
				return err
			}
			fmt.Printf("\n%d resolutions × %d bitrates → %d sweep points\n",
				len(cfg.Resolutions), len(cfg.Bitrates), len(points))
			return nil
		},
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pkt.systems/stockd/internal/version"
)

func newVersionCommand() *cobra.Command {
	var short, asYAML bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the stockd version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if short && asYAML {
				return fmt.Errorf("--short and --yaml are mutually exclusive")
			}
			info := version.Read()
			out := cmd.OutOrStdout()
			switch {
			case short:
				_, err := fmt.Fprintln(out, info.Version)
				return err
			case asYAML:
				data, err := yaml.Marshal(info)
				if err != nil {
					return fmt.Errorf("marshal version: %w", err)
				}
				_, err = out.Write(data)
				return err
			default:
				_, err := fmt.Fprintf(out, "%s %s\n", info.Module, info.Version)
				return err
			}
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "print only the version string")
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print build details as YAML")
	return cmd
}

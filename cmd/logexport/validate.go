package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

func NewCmdValidate(d deps) *cobra.Command {
	o := &GlobalOptions{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and print it with secrets masked.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := o.Load(d.Now())
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return err
			}
			fmt.Fprint(d.Stdout, string(out))
			fmt.Fprintln(d.Stdout, "configuration OK")
			return nil
		},
	}
	o.Bind(cmd.Flags())
	return cmd
}

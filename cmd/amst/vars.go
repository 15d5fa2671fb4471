package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func NewVarsCmd() *cobra.Command {
	var mf modelFlags

	cmd := &cobra.Command{
		Use:   "vars",
		Short: "List model variables and their shapes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, vs, _, err := mf.load()
			if err != nil {
				return err
			}

			vars := vs.Variables()
			names := make([]string, 0, len(vars))
			for n := range vars {
				names = append(names, n)
			}
			sort.Strings(names)

			var data [][]string
			for _, n := range names {
				v := vars[n]
				data = append(data, []string{n, fmt.Sprint(v.MustSize())})
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"NAME", "SHAPE"})
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetHeaderLine(false)
			table.SetBorder(false)
			table.SetNoWhiteSpace(true)
			table.SetTablePadding("    ")
			table.AppendBulk(data)
			table.Render()

			return nil
		},
	}

	mf.register(cmd)
	return cmd
}

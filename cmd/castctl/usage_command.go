package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newUsageCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show your remaining masters, storage and HQ credits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := ctx.ensure(); err != nil {
				return err
			}
			c := cmd.Context()
			acct := ctx.account(c)

			var rows [][]string
			if acct.Subscriber {
				st, err := ctx.app.CheckStorage(c)
				if err != nil {
					return err
				}
				rows = append(rows,
					[]string{"Plan", "Subscriber"},
					[]string{"Storage", fmt.Sprintf("%s of %s", humanize.Bytes(uint64(st.Used)), humanize.Bytes(uint64(st.Limit)))},
					[]string{"Files", humanize.Comma(int64(st.FileCount))},
				)
				if st.NearLimit {
					rows = append(rows, []string{"Warning", "storage nearly full"})
				}
			} else {
				st, err := ctx.app.CheckUsage(c, acct.UserID)
				if err != nil {
					return err
				}
				rows = append(rows,
					[]string{"Plan", "Free"},
					[]string{"Masters left this week", fmt.Sprintf("%d of %d", st.Remaining, st.Limit)},
				)
			}
			if acct.UserID != "" {
				hq, err := ctx.app.HQStatus(c)
				if err != nil {
					return err
				}
				rows = append(rows, []string{"HQ credits", humanize.Comma(int64(hq.Credits))})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"", ""}, rows))
			return nil
		},
	}
}

package cmd

import (
	"fmt"
	"strings"

	"github.com/cottand/hmerge/horizontal"
	"github.com/spf13/cobra"
)

var GroupsCmd = &cobra.Command{
	Use:          "groups program.yaml",
	Short:        "Print the groups of classes that would be merged, without merging them",
	RunE:         runGroups,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
}

var (
	showStats   *bool
	groupsFlags *commonFlags
)

func init() {
	showStats = GroupsCmd.Flags().Bool("stats", false, "print what every policy removed")
	groupsFlags = addCommonFlags(GroupsCmd)
}

func runGroups(cmd *cobra.Command, args []string) error {
	prog, keep, opts, err := setup(cmd, groupsFlags, args[0])
	if err != nil {
		return err
	}
	groups, stats, err := horizontal.SelectGroups(cmd.Context(), prog, keep, opts)
	if err != nil {
		return explain(err)
	}
	w := cmd.OutOrStdout()
	for _, g := range groups {
		sources := make([]string, 0, g.Size()-1)
		for _, c := range g.Sources() {
			sources = append(sources, c.Type.String())
		}
		_, _ = fmt.Fprintf(w, "%v <- %s\n", g.Target().Type, strings.Join(sources, ", "))
	}
	if *showStats {
		for _, s := range stats {
			_, _ = fmt.Fprintf(w, "%-50s classes %d -> %d, groups %d -> %d\n",
				s.Policy, s.ClassesIn, s.ClassesOut, s.GroupsIn, s.GroupsOut)
		}
	}
	return nil
}

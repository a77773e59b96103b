package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newPruneCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "prune <kind> <area> [name]",
		Short: "Delete an item and everything generated from it",
		Long: `Delete an item together with its verdicts and every item generated from it.
Areas take only an area number; other kinds also need the adventure name.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := ParseKind(args[0])
			if err != nil {
				return err
			}
			area, err := strconv.Atoi(args[1])
			if err != nil || area < 0 {
				return fmt.Errorf("invalid area number %q", args[1])
			}
			var name string
			if len(args) == 3 {
				name = args[2]
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			target, err := describeTarget(a.store, kind, area, name)
			if err != nil {
				return err
			}
			if !yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), target) {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
				return nil
			}
			if err := pruneItem(a.store, kind, area, name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Pruned %s\n", target)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func describeTarget(store *Store, kind Kind, area int, name string) (string, error) {
	if kind.Base() == KindArea {
		if name != "" {
			return "", fmt.Errorf("%s takes no adventure name", kind)
		}
		return fmt.Sprintf("%s %s", kind, AreaID(area)), nil
	}
	if name == "" {
		return "", fmt.Errorf("%s needs an adventure name", kind)
	}
	if _, ok := store.SlotByName(name); !ok {
		return "", fmt.Errorf("unknown adventure name %q", name)
	}
	return fmt.Sprintf("%s %s/%s", kind, AreaID(area), name), nil
}

// pruneItem removes an item and cascades to its descendants
func pruneItem(store *Store, kind Kind, area int, name string) error {
	switch kind.Base() {
	case KindArea:
		return store.PruneArea(kind, area)
	case KindAdventure:
		return store.PruneAdventure(kind, area, name)
	case KindLog:
		return store.PruneLog(kind, area, name)
	case KindLocation:
		return store.PruneLocation(kind, area, name)
	}
	return fmt.Errorf("unknown kind %q", kind)
}

func confirm(in io.Reader, out io.Writer, target string) bool {
	fmt.Fprintf(out, "Delete %s and everything generated from it? [y/N]: ", target)
	reader := bufio.NewReader(in)
	response, err := reader.ReadString('\n')
	if err != nil && response == "" {
		return false
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}

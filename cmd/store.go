package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/adalundhe/sabir/core/store"
)

// =============================================================================
// Store Command Flags
// =============================================================================

var storeJSON bool

// storeCmd manages named models.
var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage stored models",
	Long: `Manage the models saved with sabir train --store.

Subcommands:
  list   - List stored models
  rm     - Remove a stored model

Examples:
  sabir store list
  sabir store rm news`,
	RunE: runStoreList,
}

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored models",
	Args:  cobra.NoArgs,
	RunE:  runStoreList,
}

var storeRmCmd = &cobra.Command{
	Use:   "rm NAME...",
	Short: "Remove stored models",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runStoreRm,
}

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeListCmd)
	storeCmd.AddCommand(storeRmCmd)

	storeCmd.PersistentFlags().BoolVar(&storeJSON, "json", false, "Output as JSON")
}

func runStoreList(cmd *cobra.Command, _ []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	infos, err := s.List(cmd.Context())
	if err != nil {
		return err
	}

	if storeJSON {
		if infos == nil {
			infos = []store.Info{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}
	return outputStoreList(cmd.OutOrStdout(), infos)
}

func outputStoreList(w io.Writer, infos []store.Info) error {
	if len(infos) == 0 {
		_, err := fmt.Fprintln(w, "no stored models")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tN\tTABLE\tLANGUAGES\tCREATED")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n",
			info.Name, info.NGramSize, info.TableSize,
			strings.Join(info.Languages, ","),
			info.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

func runStoreRm(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	for _, name := range args {
		if err := s.Delete(cmd.Context(), name); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", name)
	}
	return nil
}

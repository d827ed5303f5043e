package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/kiplm/kiplm/internal/catalog/store"
	"github.com/kiplm/kiplm/internal/ui"
)

var addCmd = &cobra.Command{
	Use:     "add <ipn>",
	GroupID: "catalog",
	Short:   "Interactively create a part",
	Long: `Create a record in the table named by the IPN prefix, prompting for
every column of that table.

The IPN must have the form CAT-NNNN-XXXX, where CAT is the table name.
Run 'kiplm build' (or keep 'kiplm serve' running) to update the mirror.

Example:
  kiplm add RES-0042-A1B2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ipn := args[0]
		table := store.TableForIPN(ipn)
		if err := store.ValidateIPN(table, ipn); err != nil {
			return err
		}

		st := store.New(cfg.DBDir)
		t, err := st.Read(table)
		if err != nil {
			return err
		}
		if _, err := st.FindByIPN(table, ipn); err == nil {
			return fmt.Errorf("%w: %s", store.ErrDuplicateIdentifier, ipn)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		values := make([]string, len(t.Columns))
		var fields []huh.Field
		for i, col := range t.Columns {
			if col == store.KeyColumn {
				continue
			}
			fields = append(fields, huh.NewInput().Title(col).Value(&values[i]))
		}

		confirm := true
		var groups []*huh.Group
		if len(fields) > 0 {
			groups = append(groups, huh.NewGroup(fields...).Title(fmt.Sprintf("New %s part %s", table, ipn)))
		}
		groups = append(groups, huh.NewGroup(huh.NewConfirm().Title("Create part?").Value(&confirm)))
		form := huh.NewForm(groups...).WithAccessible(!ui.IsTerminal(os.Stdin))

		if err := form.RunWithContext(cmd.Context()); err != nil {
			return err
		}
		if !confirm {
			fmt.Println("Aborted.")
			return nil
		}

		input := make(map[string]string, len(values))
		for i, col := range t.Columns {
			if col != store.KeyColumn {
				input[col] = values[i]
			}
		}

		if _, err := st.Create(table, ipn, input); err != nil {
			return err
		}
		fmt.Printf("%s Created %s in %s\n", ui.RenderPass("✓"), ipn, st.Path(table))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
}

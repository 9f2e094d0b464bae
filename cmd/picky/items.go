package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dukerupert/picky/internal/client"
	"github.com/dukerupert/picky/internal/model"
)

// itemDef describes the kind-specific parts of an item command.
type itemDef[T any, P model.RecordPtr[T]] struct {
	use     string
	aliases []string
	short   string
	// collection picks the kind's collection from the controller.
	collection func(*client.Controller) *client.Collection[T, P]
	// addFlags registers the kind's own fields on add and set.
	addFlags func(cmd *cobra.Command)
	// apply copies the kind's flags that were set onto item.
	apply  func(cmd *cobra.Command, item P) error
	header string
	row    func(item T) string
	// clear, when set, adds a "clear" subcommand.
	clear      func(ctrl *client.Controller, ctx context.Context, confirm func(int) bool) (int, error)
	clearShort string
	clearWhat  string
}

func newItemCmds() []*cobra.Command {
	return []*cobra.Command{
		newItemCmd(itemDef[model.ShoppingItem, *model.ShoppingItem]{
			use:   "shopping",
			short: "Manage the shopping list",
			collection: func(c *client.Controller) *client.Collection[model.ShoppingItem, *model.ShoppingItem] {
				return c.Shopping
			},
			addFlags: func(cmd *cobra.Command) {
				cmd.Flags().Bool("in-cart", false, "Mark the item as in the cart")
			},
			apply: func(cmd *cobra.Command, item *model.ShoppingItem) error {
				return boolFlag(cmd, "in-cart", &item.InCart)
			},
			header:     "ID\tNAME\tIN CART",
			row:        func(i model.ShoppingItem) string { return fmt.Sprintf("%s\t%s\t%s", i.ID, i.Name, check(i.InCart)) },
			clear:      (*client.Controller).RemoveCompleted,
			clearShort: "Remove items already in the cart",
			clearWhat:  "items in the cart",
		}),
		newItemCmd(itemDef[model.LarderItem, *model.LarderItem]{
			use:        "larder",
			short:      "Manage the larder",
			collection: func(c *client.Controller) *client.Collection[model.LarderItem, *model.LarderItem] { return c.Larder },
			addFlags: func(cmd *cobra.Command) {
				cmd.Flags().Bool("reorder", false, "Mark the item for reorder")
			},
			apply: func(cmd *cobra.Command, item *model.LarderItem) error {
				return boolFlag(cmd, "reorder", &item.Reorder)
			},
			header:     "ID\tNAME\tREORDER",
			row:        func(i model.LarderItem) string { return fmt.Sprintf("%s\t%s\t%s", i.ID, i.Name, check(i.Reorder)) },
			clear:      (*client.Controller).RemoveFlagged,
			clearShort: "Remove items marked for reorder",
			clearWhat:  "items marked for reorder",
		}),
		newItemCmd(itemDef[model.MealItem, *model.MealItem]{
			use:        "meals",
			aliases:    []string{"meal"},
			short:      "Manage meals",
			collection: func(c *client.Controller) *client.Collection[model.MealItem, *model.MealItem] { return c.Meals },
			addFlags: func(cmd *cobra.Command) {
				cmd.Flags().String("ingredients", "", "Free-text ingredients")
			},
			apply: func(cmd *cobra.Command, item *model.MealItem) error {
				if !cmd.Flags().Changed("ingredients") {
					return nil
				}
				v, err := cmd.Flags().GetString("ingredients")
				item.Ingredients = v
				return err
			},
			header: "ID\tNAME\tINGREDIENTS",
			row:    func(i model.MealItem) string { return fmt.Sprintf("%s\t%s\t%s", i.ID, i.Name, i.Ingredients) },
		}),
	}
}

func newItemCmd[T any, P model.RecordPtr[T]](def itemDef[T, P]) *cobra.Command {
	cmd := &cobra.Command{
		Use:     def.use,
		Aliases: def.aliases,
		Short:   def.short,
	}

	// load returns the controller and the kind's collection, loaded.
	load := func(ctx context.Context) (*client.Controller, *client.Collection[T, P], error) {
		ctrl := client.NewController(client.New(client.DefaultConfig(cfg.APIURL)))
		coll := def.collection(ctrl)
		if err := coll.Load(ctx); err != nil {
			return nil, nil, err
		}
		return ctrl, coll, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List items, unflagged first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, coll, err := load(cmd.Context())
			if err != nil {
				return err
			}
			printEntries(cmd.OutOrStdout(), def.header, coll.Sorted(), def.row)
			return nil
		},
	})

	add := &cobra.Command{
		Use:   "add NAME...",
		Short: "Add an item",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := client.NewController(client.New(client.DefaultConfig(cfg.APIURL)))
			coll := def.collection(ctrl)

			var applyErr error
			id := coll.NewDraft()
			if err := coll.SetDraft(id, func(item P) {
				item.Common().Name = strings.Join(args, " ")
				applyErr = def.apply(cmd, item)
			}); err != nil {
				return err
			}
			if applyErr != nil {
				return applyErr
			}

			saved, err := coll.SaveDraft(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !saved {
				return fmt.Errorf("name is required")
			}
			fmt.Fprintln(cmd.OutOrStdout(), ctrl.Status.Current().Message)
			return nil
		},
	}
	def.addFlags(add)
	cmd.AddCommand(add)

	var name string
	set := &cobra.Command{
		Use:   "set ID",
		Short: "Change an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Read the flags before anything is sent.
			var flags T
			if err := def.apply(cmd, P(&flags)); err != nil {
				return err
			}
			ctrl, coll, err := load(cmd.Context())
			if err != nil {
				return err
			}
			_, err = coll.Update(cmd.Context(), args[0], func(item P) {
				if cmd.Flags().Changed("name") {
					item.Common().Name = name
				}
				_ = def.apply(cmd, item)
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ctrl.Status.Current().Message)
			return nil
		},
	}
	set.Flags().StringVar(&name, "name", "", "New name")
	def.addFlags(set)
	cmd.AddCommand(set)

	cmd.AddCommand(&cobra.Command{
		Use:     "rm ID...",
		Aliases: []string{"delete"},
		Short:   "Delete items",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, coll, err := load(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := coll.Delete(cmd.Context(), id); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), ctrl.Status.Current().Message)
			return nil
		},
	})

	if def.clear != nil {
		var yes bool
		clearCmd := &cobra.Command{
			Use:   "clear",
			Short: def.clearShort,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				ctrl, _, err := load(cmd.Context())
				if err != nil {
					return err
				}
				confirm := func(n int) bool {
					return yes || prompt(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Remove %d %s?", n, def.clearWhat))
				}
				removed, err := def.clear(ctrl, cmd.Context(), confirm)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d %s\n", removed, def.clearWhat)
				return nil
			},
		}
		clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
		cmd.AddCommand(clearCmd)
	}

	return cmd
}

func newListAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "Show all three lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := client.NewController(client.New(client.DefaultConfig(cfg.APIURL)))
			loadErr := ctrl.Load(cmd.Context())

			out := cmd.OutOrStdout()
			section(out, "Shopping", ctrl.Shopping.Err(), func() {
				printEntries(out, "ID\tNAME\tIN CART", ctrl.Shopping.Sorted(), func(i model.ShoppingItem) string {
					return fmt.Sprintf("%s\t%s\t%s", i.ID, i.Name, check(i.InCart))
				})
			})
			section(out, "Larder", ctrl.Larder.Err(), func() {
				printEntries(out, "ID\tNAME\tREORDER", ctrl.Larder.Sorted(), func(i model.LarderItem) string {
					return fmt.Sprintf("%s\t%s\t%s", i.ID, i.Name, check(i.Reorder))
				})
			})
			section(out, "Meals", ctrl.Meals.Err(), func() {
				printEntries(out, "ID\tNAME\tINGREDIENTS", ctrl.Meals.Sorted(), func(i model.MealItem) string {
					return fmt.Sprintf("%s\t%s\t%s", i.ID, i.Name, i.Ingredients)
				})
			})
			return loadErr
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the API and its storage backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(client.DefaultConfig(cfg.APIURL))
			h, err := c.Health(cmd.Context())
			if h.Status != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (environment %s, storage %s, database %s)\n",
					h.Status, h.Environment, h.Storage, h.Database)
			}
			return err
		},
	}
}

func section(w io.Writer, title string, err error, body func()) {
	fmt.Fprintf(w, "== %s ==\n", title)
	if err != nil {
		fmt.Fprintf(w, "failed to load: %v\n\n", err)
		return
	}
	body()
	fmt.Fprintln(w)
}

func printEntries[T any](w io.Writer, header string, entries []client.Entry[T], row func(T) string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	for _, e := range entries {
		if e.State != client.Persisted {
			continue
		}
		fmt.Fprintln(tw, row(e.Item))
	}
	tw.Flush()
}

func boolFlag(cmd *cobra.Command, name string, dst *bool) error {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func check(b bool) string {
	if b {
		return "x"
	}
	return ""
}

// prompt asks a yes/no question and reports whether the answer was yes.
func prompt(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

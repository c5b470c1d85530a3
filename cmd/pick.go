package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"nomade/picking"
)

var (
	pickFamily   string
	pickOrder    int64
	pickItem     int64
	pickByRef    bool
	pickQuantity int
	pickOrders   []string
	pickLocation string
	pickMovement int64
)

var pickCmd = &cobra.Command{
	Use:   "pick",
	Short: "Pick a quantity from an order line and record a movement",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := picking.FamilyByName(pickFamily)
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := picking.NewLedger(store).Pick(cmd.Context(), picking.PickRequest{
			Family:   f,
			OrderID:  pickOrder,
			ItemID:   pickItem,
			ByRef:    pickByRef,
			Quantity: pickQuantity,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Picked: line=%d movement=%d (%s) merged=%t exhausted=%t\n",
			res.TreatedItemID, res.MovementID, res.MovementUUID, res.Merged, res.SourceExhausted)
		return nil
	},
}

var picksResetCmd = &cobra.Command{
	Use:   "picks:reset",
	Short: "Undo the picks of one or more orders",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := picking.FamilyByName(pickFamily)
		if err != nil {
			return err
		}
		ids, err := parseIDs(pickOrders)
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := picking.NewLedger(store).ResetPicks(cmd.Context(), f, ids)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Picks reset: %d orders, %d lines restored\n", len(ids), n)
		return nil
	},
}

var orderFinishCmd = &cobra.Command{
	Use:   "order:finish",
	Short: "Close an order at its end location",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := picking.FamilyByName(pickFamily)
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := picking.NewLedger(store).FinishOrder(cmd.Context(), f, pickOrder, pickLocation)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Order %d finished, %d movements dropped\n", pickOrder, n)
		return nil
	},
}

var movementDropCmd = &cobra.Command{
	Use:   "movement:drop",
	Short: "Drop a picked movement at a location",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		if err := picking.NewLedger(store).Drop(cmd.Context(), pickMovement, pickLocation); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Movement %d dropped at %s\n", pickMovement, pickLocation)
		return nil
	},
}

func init() {
	pickCmd.Flags().StringVar(&pickFamily, "family", "preparation", "Order family: preparation, livraison or collecte")
	pickCmd.Flags().Int64Var(&pickOrder, "order", 0, "Order id")
	pickCmd.Flags().Int64Var(&pickItem, "item", 0, "Line id (article or reference article)")
	pickCmd.Flags().BoolVar(&pickByRef, "by-ref", false, "The item is a reference article of the preparation")
	pickCmd.Flags().IntVarP(&pickQuantity, "qty", "q", 0, "Quantity to pick")
	pickCmd.MarkFlagRequired("order")
	pickCmd.MarkFlagRequired("item")
	pickCmd.MarkFlagRequired("qty")

	picksResetCmd.Flags().StringVar(&pickFamily, "family", "preparation", "Order family")
	picksResetCmd.Flags().StringArrayVar(&pickOrders, "order", nil, "Order ids (repeatable or comma separated)")
	picksResetCmd.MarkFlagRequired("order")

	orderFinishCmd.Flags().StringVar(&pickFamily, "family", "preparation", "Order family")
	orderFinishCmd.Flags().Int64Var(&pickOrder, "order", 0, "Order id")
	orderFinishCmd.Flags().StringVar(&pickLocation, "location", "", "End location")
	orderFinishCmd.MarkFlagRequired("order")
	orderFinishCmd.MarkFlagRequired("location")

	movementDropCmd.Flags().Int64Var(&pickMovement, "id", 0, "Movement id")
	movementDropCmd.Flags().StringVar(&pickLocation, "location", "", "Drop location")
	movementDropCmd.MarkFlagRequired("id")
	movementDropCmd.MarkFlagRequired("location")

	rootCmd.AddCommand(pickCmd, picksResetCmd, orderFinishCmd, movementDropCmd)
}

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/telecare/consultation"
)

func (a *app) consultationsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "consultations",
		Aliases: []string{"c"},
		Short:   "Consultation records",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List consultations visible to the logged in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.restore(cmd.Context()); err != nil {
				return err
			}
			status, _ := cmd.Flags().GetString("status")
			page, _ := cmd.Flags().GetInt("page")
			limit, _ := cmd.Flags().GetInt("limit")

			res, err := a.session.Consultations().List(cmd.Context(), consultation.ListOptions{
				Status: consultation.Status(status),
				Page:   page,
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tPAYMENT\tREASON\tCREATED")
			for _, c := range res.Items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Status, c.PaymentStatus, c.Reason, stamp(c.CreatedAt))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "page %d, %d of %d\n", res.Page, len(res.Items), res.Total)
			return nil
		},
	}
	list.Flags().String("status", "", "filter by status")
	list.Flags().Int("page", 0, "page number")
	list.Flags().Int("limit", 0, "page size")

	cmd.AddCommand(list)
	return cmd
}

func (a *app) prescriptionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "prescriptions",
		Aliases: []string{"rx"},
		Short:   "Prescription records",
	}

	history := &cobra.Command{
		Use:   "history [PATIENT_ID]",
		Short: "Show a patient's prescriptions, newest first",
		Long:  "Show a patient's prescriptions. Without PATIENT_ID the logged in user's own history is shown.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.restore(cmd.Context())
			if err != nil {
				return err
			}
			patient := user.ID
			if len(args) == 1 {
				patient = args[0]
			}

			items, err := a.session.Prescriptions().History(cmd.Context(), patient)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no prescriptions")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tCONSULTATION\tMEDICATIONS\tSIGNED")
			for _, p := range items {
				signed := "-"
				if p.SignedAt != nil {
					signed = stamp(*p.SignedAt)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", p.ID, p.Status, p.ConsultationID, len(p.Medications), signed)
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(history)
	return cmd
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

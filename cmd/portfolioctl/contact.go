package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Zachkp/portfolio/internal/contact"
)

func newContactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contact",
		Short: "Exercise the contact endpoint",
	}
	cmd.AddCommand(newContactSendCmd())
	return cmd
}

func newContactSendCmd() *cobra.Command {
	var (
		endpoint string
		form     contact.Form
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Submit one message the way the site's contact form does",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if endpoint == "" {
				return errors.New("--endpoint is required (or set CONTACT_ENDPOINT)")
			}
			s := contact.NewSubmitter(contact.NewHTTPEndpoint(endpoint))
			s.SetForm(form)
			err := s.Submit(cmd.Context())
			if errors.Is(err, contact.ErrIncomplete) {
				return err
			}
			v := s.View()
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", v.Status, v.Message)
			return err
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", envOr("CONTACT_ENDPOINT", ""), "Contact endpoint URL")
	cmd.Flags().StringVar(&form.Name, "name", "", "Sender name")
	cmd.Flags().StringVar(&form.Email, "email", "", "Sender email")
	cmd.Flags().StringVar(&form.Subject, "subject", "", "Subject line")
	cmd.Flags().StringVar(&form.Message, "message", "", "Message body")
	return cmd
}

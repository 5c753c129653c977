package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/nisfere/internal/core"
	nisbus "github.com/jmylchreest/nisfere/internal/dbus"
	"github.com/jmylchreest/nisfere/internal/model"
)

var sendOpts struct {
	appName   string
	icon      string
	urgency   string
	actions   []string
	replaces  uint32
	expire    int32
	category  string
	image     string
	transient bool
}

var sendCmd = &cobra.Command{
	Use:   "send SUMMARY [BODY]",
	Short: "Send a desktop notification",
	Long: `Send a desktop notification to whichever daemon owns
org.freedesktop.Notifications and print its id.

Examples:
  nisfere send "Build finished" "All 42 tests passed"
  nisfere send --urgency critical --action default=Open --action retry=Retry "Deploy failed"
  nisfere send --expire 0 --image ~/shot.png "Screenshot saved"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVarP(&sendOpts.appName, "app", "a", "nisfere",
		"Application name")
	sendCmd.Flags().StringVarP(&sendOpts.icon, "icon", "i", "",
		"Icon name or path")
	sendCmd.Flags().StringVarP(&sendOpts.urgency, "urgency", "u", "normal",
		"Urgency (low, normal, critical)")
	sendCmd.Flags().StringArrayVar(&sendOpts.actions, "action", nil,
		"Action as key=label (repeatable)")
	sendCmd.Flags().Uint32VarP(&sendOpts.replaces, "replace", "r", 0,
		"Id of a notification to replace")
	sendCmd.Flags().Int32VarP(&sendOpts.expire, "expire", "t", -1,
		"Expiry in milliseconds (-1 = server default, 0 = never)")
	sendCmd.Flags().StringVarP(&sendOpts.category, "category", "c", "",
		"Notification category")
	sendCmd.Flags().StringVar(&sendOpts.image, "image", "",
		"Image file to attach")
	sendCmd.Flags().BoolVar(&sendOpts.transient, "transient", false,
		"Ask the server not to keep the notification")
}

func runSend(cmd *cobra.Command, args []string) error {
	msg, err := buildMessage(args)
	if err != nil {
		return err
	}

	sender, err := nisbus.NewSender()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	id, err := sender.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
	return err
}

// buildMessage turns the command line into a Message.
func buildMessage(args []string) (nisbus.Message, error) {
	urgency, err := core.ParseUrgency(sendOpts.urgency)
	if err != nil {
		return nisbus.Message{}, err
	}
	actions, err := parseActions(sendOpts.actions)
	if err != nil {
		return nisbus.Message{}, err
	}

	msg := nisbus.Message{
		AppName:       sendOpts.appName,
		AppIcon:       sendOpts.icon,
		Summary:       args[0],
		Urgency:       urgency,
		Actions:       actions,
		ReplacesID:    sendOpts.replaces,
		ExpireTimeout: sendOpts.expire,
		Category:      sendOpts.category,
		ImagePath:     sendOpts.image,
		Transient:     sendOpts.transient,
	}
	if len(args) > 1 {
		msg.Body = args[1]
	}
	return msg, nil
}

// parseActions parses key=label pairs. A bare key is its own label.
func parseActions(specs []string) ([]model.Action, error) {
	actions := make([]model.Action, 0, len(specs))
	for _, spec := range specs {
		key, label, found := strings.Cut(spec, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("invalid action %q: empty key", spec)
		}
		if !found {
			label = key
		}
		actions = append(actions, model.Action{Identifier: key, Label: label})
	}
	return actions, nil
}

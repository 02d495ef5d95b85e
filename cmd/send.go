package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"wagate/pkg/client"
	"wagate/pkg/media"
	"wagate/pkg/whatsapp"
)

var (
	sendGroup      bool
	sendReplyTo    string
	sendCaption    string
	sendTitle      string
	sendSelectable int
	sendDir        string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one message and print the gateway response",
}

var sendTextCmd = &cobra.Command{
	Use:   "text PHONE MESSAGE...",
	Short: "Send a text message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("cmd.send", true)
		if err != nil {
			return err
		}

		return printResult(cmd.OutOrStdout(), a.gateway.SendMessage(cmd.Context(), client.TextMessage{
			Phone:     recipient(args[0], sendGroup),
			Message:   strings.Join(args[1:], " "),
			IsGroup:   sendGroup,
			MessageID: sendReplyTo,
		}))
	},
}

var sendLocationCmd = &cobra.Command{
	Use:   "location PHONE LATITUDE LONGITUDE",
	Short: "Send a location pin",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, lng, err := parseCoordinates(args[1], args[2])
		if err != nil {
			return err
		}

		a, err := newApp("cmd.send", true)
		if err != nil {
			return err
		}

		return printResult(cmd.OutOrStdout(), a.gateway.SendLocation(cmd.Context(), client.LocationMessage{
			Phone:     recipient(args[0], sendGroup),
			Latitude:  lat,
			Longitude: lng,
			Title:     sendTitle,
			IsGroup:   sendGroup,
		}))
	},
}

var sendFileCmd = &cobra.Command{
	Use:   "file PHONE PATH_OR_URL",
	Short: "Send a document, image, video or audio file",
	Args:  cobra.ExactArgs(2),
	RunE:  runSendFile(false),
}

var sendImageCmd = &cobra.Command{
	Use:   "image PHONE PATH_OR_URL",
	Short: "Send an image with an optional caption",
	Args:  cobra.ExactArgs(2),
	RunE:  runSendFile(true),
}

var sendPollCmd = &cobra.Command{
	Use:   "poll PHONE QUESTION CHOICE CHOICE...",
	Short: "Send a poll",
	Args:  cobra.MinimumNArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		choices, err := parseChoices(args[2:])
		if err != nil {
			return err
		}

		a, err := newApp("cmd.send", true)
		if err != nil {
			return err
		}

		return printResult(cmd.OutOrStdout(), a.gateway.SendPoll(cmd.Context(), client.PollMessage{
			Phone:           recipient(args[0], sendGroup),
			Name:            args[1],
			Choices:         choices,
			SelectableCount: sendSelectable,
			IsGroup:         sendGroup,
		}))
	},
}

var sendContactCmd = &cobra.Command{
	Use:   "contact PHONE CONTACT_PHONE",
	Short: "Share a contact card",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("cmd.send", true)
		if err != nil {
			return err
		}

		return printResult(cmd.OutOrStdout(), a.gateway.SendContact(
			cmd.Context(),
			recipient(args[0], sendGroup),
			whatsapp.ContactChatID(args[1]),
			sendGroup,
		))
	},
}

var sendRecentCmd = &cobra.Command{
	Use:   "recent PHONE",
	Short: "Send every file recently added to the media folder",
	Long: `Sends each file in the media folder (WPP_FILES_DIR) modified within the
recent window (WPP_RECENT_WINDOW_SECONDS). The folder is created when missing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("cmd.send", true)
		if err != nil {
			return err
		}

		dir := sendDir
		if dir == "" {
			dir = a.cfg.Media.Dir
		}

		return sendRecent(cmd.Context(), a, recipient(args[0], sendGroup), sendGroup, dir, func(name string, result whatsapp.Result) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ", name)
			return printJSON(cmd.OutOrStdout(), result)
		})
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.PersistentFlags().BoolVarP(&sendGroup, "group", "g", false, "PHONE is a group id")
	sendTextCmd.Flags().StringVar(&sendReplyTo, "reply-to", "", "quote the message with this id")
	sendLocationCmd.Flags().StringVar(&sendTitle, "title", "", "label shown on the pin")
	sendFileCmd.Flags().StringVar(&sendCaption, "caption", "", "text shown under the file")
	sendImageCmd.Flags().StringVar(&sendCaption, "caption", "", "text shown under the image")
	sendPollCmd.Flags().IntVar(&sendSelectable, "selectable", 1, "how many choices a voter may pick")
	sendRecentCmd.Flags().StringVar(&sendDir, "dir", "", "media folder (WPP_FILES_DIR)")

	sendCmd.AddCommand(sendTextCmd, sendLocationCmd, sendFileCmd, sendImageCmd, sendPollCmd, sendContactCmd, sendRecentCmd)
}

func runSendFile(asImage bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp("cmd.send", true)
		if err != nil {
			return err
		}

		file := client.FileMessage{
			Phone:   recipient(args[0], sendGroup),
			FileURL: args[1],
			Caption: sendCaption,
			IsGroup: sendGroup,
		}
		if asImage {
			return printResult(cmd.OutOrStdout(), a.gateway.SendImage(cmd.Context(), file))
		}
		return printResult(cmd.OutOrStdout(), a.gateway.SendFile(cmd.Context(), file))
	}
}

// recipient normalizes a typed phone number to digits; group ids pass through.
func recipient(phone string, isGroup bool) string {
	if isGroup {
		return strings.TrimSpace(phone)
	}

	return whatsapp.StripContactSuffix(whatsapp.ContactChatID(phone))
}

func parseCoordinates(latitude string, longitude string) (float64, float64, error) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(latitude), 64)
	if err != nil || lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("invalid latitude %q", latitude)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(longitude), 64)
	if err != nil || lng < -180 || lng > 180 {
		return 0, 0, fmt.Errorf("invalid longitude %q", longitude)
	}

	return lat, lng, nil
}

func parseChoices(args []string) ([]string, error) {
	seen := make(map[string]struct{}, len(args))
	choices := make([]string, 0, len(args))
	for _, arg := range args {
		choice := strings.TrimSpace(arg)
		if choice == "" {
			continue
		}
		if _, dup := seen[choice]; dup {
			return nil, fmt.Errorf("duplicate poll choice %q", choice)
		}
		seen[choice] = struct{}{}
		choices = append(choices, choice)
	}
	if len(choices) < 2 {
		return nil, errors.New("a poll needs at least two choices")
	}

	return choices, nil
}

// sendRecent sends files from dir modified within the configured window. Images
// go out as images, everything else as documents.
func sendRecent(ctx context.Context, a *app, phone string, isGroup bool, dir string, report func(string, whatsapp.Result) error) error {
	resolved, err := media.ResolveDir(dir)
	if err != nil {
		return err
	}
	names, err := media.RecentFiles(resolved, a.cfg.Media.RecentWindow())
	if err != nil {
		return err
	}
	if len(names) == 0 {
		a.log.Info("No recent files to send", "dir", resolved, "window", a.cfg.Media.RecentWindow())
		return nil
	}

	var failed int
	for _, name := range names {
		path := filepath.Join(resolved, name)
		file := client.FileMessage{Phone: phone, FileURL: path, Filename: name, IsGroup: isGroup}

		var result whatsapp.Result
		if media.Classify("", name).Category == media.CategoryImage {
			result = a.gateway.SendImage(ctx, file)
		} else {
			result = a.gateway.SendFile(ctx, file)
		}
		if !result.OK {
			failed++
		}
		if err := report(name, result); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed to send", failed, len(names))
	}
	return nil
}

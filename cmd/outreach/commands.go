package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/outreach/internal/classify"
	"github.com/kalambet/outreach/internal/generation"
	"github.com/kalambet/outreach/internal/lead"
	"github.com/kalambet/outreach/internal/profile"
)

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// --- lead ---

var leadCmd = &cobra.Command{
	Use:   "lead",
	Short: "Manage leads",
}

var leadAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add and score a lead",
	Long: `Add a lead. The server scores it before storing.

Examples:
  outreach lead add --name "Jane Doe" --email jane@acme.com --company Acme --title CTO
  outreach lead add --name Sam --email sam@corp.io --company Corp --title "VP Sales" --pain-points "manual reporting,slow onboarding"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		company, _ := cmd.Flags().GetString("company")
		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")
		pains, _ := cmd.Flags().GetString("pain-points")
		phone, _ := cmd.Flags().GetString("phone")
		linkedin, _ := cmd.Flags().GetString("linkedin")

		if name == "" || email == "" || company == "" || title == "" {
			return fmt.Errorf("--name, --email, --company and --title are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/leads", lead.Lead{
			Name:               name,
			Email:              email,
			Company:            company,
			JobTitle:           title,
			CompanyDescription: description,
			PainPoints:         splitList(pains),
			Phone:              phone,
			LinkedIn:           linkedin,
		})
		if err != nil {
			return err
		}

		var created lead.Lead
		if err := decodeJSON(resp, &created); err != nil {
			return err
		}
		printSuccess("Added lead %s (score %s)", created.ID, scoreLabel(created.Score))
		return nil
	},
}

var leadListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		campaign, _ := cmd.Flags().GetString("campaign")
		limit, _ := cmd.Flags().GetInt("limit")

		q := url.Values{}
		if status != "" {
			q.Set("status", status)
		}
		if campaign != "" {
			q.Set("campaign_id", campaign)
		}
		q.Set("limit", fmt.Sprint(limit))

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/leads?"+q.Encode())
		if err != nil {
			return err
		}

		var leads []lead.Lead
		if err := decodeJSON(resp, &leads); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(leads) == 0 {
			fmt.Fprintln(out, "No leads found.")
			return nil
		}
		for _, l := range leads {
			fmt.Fprintf(out, "%s  %s  %-10s  %s <%s>, %s at %s\n",
				colorize(colorCyan, l.ID), scoreLabel(l.Score), l.Status, l.Name, l.Email, l.JobTitle, l.Company)
		}
		return nil
	},
}

var leadScoreCmd = &cobra.Command{
	Use:   "score <lead-id>",
	Short: "Re-score a lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/leads/"+url.PathEscape(args[0])+"/score", nil)
		if err != nil {
			return err
		}

		var score lead.LeadScore
		if err := decodeJSON(resp, &score); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s  %s  confidence %.2f\n",
			colorize(colorBold, "Score:"), scoreLabel(score.Score), score.Classification, score.Confidence)
		for _, r := range score.Recommendations {
			fmt.Fprintf(out, "  - %s\n", r)
		}
		return nil
	},
}

var leadEmailCmd = &cobra.Command{
	Use:   "email <lead-id>",
	Short: "Generate a cold email for a lead without sending it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		campaign, _ := cmd.Flags().GetString("campaign")
		body := map[string]any{}
		if campaign != "" {
			body["campaign_id"] = campaign
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/leads/"+url.PathEscape(args[0])+"/emails/cold", body)
		if err != nil {
			return err
		}

		var email generation.GeneratedEmail
		if err := decodeJSON(resp, &email); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), email)
	},
}

func init() {
	leadAddCmd.Flags().String("name", "", "contact name")
	leadAddCmd.Flags().String("email", "", "contact email")
	leadAddCmd.Flags().String("company", "", "company name")
	leadAddCmd.Flags().String("title", "", "job title")
	leadAddCmd.Flags().String("description", "", "company description")
	leadAddCmd.Flags().String("pain-points", "", "comma-separated pain points")
	leadAddCmd.Flags().String("phone", "", "phone number")
	leadAddCmd.Flags().String("linkedin", "", "LinkedIn profile URL")

	leadListCmd.Flags().String("status", "", "filter by status")
	leadListCmd.Flags().String("campaign", "", "filter by campaign ID")
	leadListCmd.Flags().Int("limit", 50, "maximum number of leads")

	leadEmailCmd.Flags().String("campaign", "", "campaign whose settings to use")

	leadCmd.AddCommand(leadAddCmd, leadListCmd, leadScoreCmd, leadEmailCmd)
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import leads from external sources",
}

var importSheetCmd = &cobra.Command{
	Use:   "sheet <spreadsheet-id>",
	Short: "Queue a Google Sheets lead import",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rng, _ := cmd.Flags().GetString("range")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/imports/sheets", map[string]string{
			"spreadsheet_id": args[0],
			"range":          rng,
		})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Queued import job %s", result["job_id"])
		return nil
	},
}

func init() {
	importSheetCmd.Flags().String("range", "", "A1 range to read (default: first sheet)")
	importCmd.AddCommand(importSheetCmd)
}

// --- campaign ---

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Create and run outreach campaigns",
}

var campaignCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a campaign",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vp, _ := cmd.Flags().GetString("value-proposition")
		link, _ := cmd.Flags().GetString("scheduling-link")
		approach, _ := cmd.Flags().GetString("approach")
		fromName, _ := cmd.Flags().GetString("from-name")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/campaigns", map[string]any{
			"name": args[0],
			"settings": lead.CampaignSettings{
				ValueProposition: vp,
				SchedulingLink:   link,
				Approach:         approach,
				FromName:         fromName,
			},
		})
		if err != nil {
			return err
		}

		var c lead.Campaign
		if err := decodeJSON(resp, &c); err != nil {
			return err
		}
		printSuccess("Created campaign %s (%s)", c.ID, c.Name)
		return nil
	},
}

var campaignStartCmd = &cobra.Command{
	Use:   "start <campaign-id>",
	Short: "Start an outreach job for a campaign",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return jobAction(cmd, "/campaigns/"+url.PathEscape(args[0])+"/start", "Started job %s (%s)")
	},
}

var campaignPauseCmd = &cobra.Command{
	Use:   "pause <job-id>",
	Short: "Pause a campaign job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return jobAction(cmd, "/jobs/"+url.PathEscape(args[0])+"/pause", "Job %s is %s")
	},
}

var campaignResumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Resume a paused campaign job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return jobAction(cmd, "/jobs/"+url.PathEscape(args[0])+"/resume", "Job %s is %s")
	},
}

var campaignStatusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Show one campaign job, or all jobs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var jobs []lead.CampaignJob
		if len(args) == 1 {
			resp, err := client.get(cmd.Context(), "/jobs/"+url.PathEscape(args[0]))
			if err != nil {
				return err
			}
			var j lead.CampaignJob
			if err := decodeJSON(resp, &j); err != nil {
				return err
			}
			jobs = append(jobs, j)
		} else {
			resp, err := client.get(cmd.Context(), "/jobs")
			if err != nil {
				return err
			}
			if err := decodeJSON(resp, &jobs); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		if len(jobs) == 0 {
			fmt.Fprintln(out, "No campaign jobs.")
			return nil
		}
		for _, j := range jobs {
			fmt.Fprintf(out, "%s  campaign %s  %-9s  %d/%d processed, %d sent\n",
				colorize(colorCyan, j.ID), j.CampaignID, j.Status, j.Processed, j.Total, j.EmailsSent)
			if j.Error != "" {
				fmt.Fprintf(out, "  %s %s\n", colorize(colorRed, "error:"), j.Error)
			}
		}
		return nil
	},
}

func jobAction(cmd *cobra.Command, path, format string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	resp, err := client.post(cmd.Context(), path, nil)
	if err != nil {
		return err
	}
	var j lead.CampaignJob
	if err := decodeJSON(resp, &j); err != nil {
		return err
	}
	printSuccess(format, j.ID, j.Status)
	return nil
}

func init() {
	campaignCreateCmd.Flags().String("value-proposition", "", "what the campaign offers")
	campaignCreateCmd.Flags().String("scheduling-link", "", "booking link included in emails")
	campaignCreateCmd.Flags().String("approach", "", "tone, e.g. \"friendly, concise\"")
	campaignCreateCmd.Flags().String("from-name", "", "sender display name")

	campaignCmd.AddCommand(campaignCreateCmd, campaignStartCmd, campaignPauseCmd, campaignResumeCmd, campaignStatusCmd)
}

// --- classify ---

var classifyCmd = &cobra.Command{
	Use:   "classify [text]",
	Short: "Classify a reply (reads stdin when no text is given)",
	RunE: func(cmd *cobra.Command, args []string) error {
		leadID, _ := cmd.Flags().GetString("lead")

		text := strings.Join(args, " ")
		if text == "" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			text = string(data)
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("reply text is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/responses/classify", map[string]string{
			"text":    text,
			"lead_id": leadID,
		})
		if err != nil {
			return err
		}

		var a classify.Analysis
		if err := decodeJSON(resp, &a); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s (confidence %.0f%%)\n", colorize(colorBold, "Category:"), a.Category, a.Confidence)
		fmt.Fprintf(out, "%s %s, urgency %s\n", colorize(colorBold, "Sentiment:"), a.Sentiment, a.Urgency)
		if a.RecommendedNextAction != "" {
			fmt.Fprintf(out, "%s %s\n", colorize(colorBold, "Next:"), a.RecommendedNextAction)
		}
		return nil
	},
}

func init() {
	classifyCmd.Flags().String("lead", "", "record the reply against this lead")
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage the sender profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the sender profile as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/profile")
		if err != nil {
			return err
		}

		var p profile.Profile
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), p)
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a profile field (list fields take comma-separated values)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		var v any = value
		if profile.IsListKey(key) {
			v = splitList(value)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.patch(cmd.Context(), "/profile", map[string]any{key: v})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var profileImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import sender settings from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening profile file: %w", err)
		}
		defer f.Close()

		p, err := profile.ParseYAML(f)
		if err != nil {
			return err
		}
		fields := p.Fields()
		if len(fields) == 0 {
			printWarning("%s has no profile fields", args[0])
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.patch(cmd.Context(), "/profile", fields)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Imported %d profile fields", len(fields))
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileShowCmd, profileSetCmd, profileImportCmd)
}

// --- quota ---

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Inspect or reset the daily generation quota",
	RunE: func(cmd *cobra.Command, args []string) error {
		return quotaRequest(cmd, false)
	},
}

var quotaResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the daily generation counter",
	RunE: func(cmd *cobra.Command, args []string) error {
		return quotaRequest(cmd, true)
	},
}

func quotaRequest(cmd *cobra.Command, reset bool) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	var usage generation.Usage
	if reset {
		resp, err := client.post(cmd.Context(), "/admin/quota/reset", nil)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, &usage); err != nil {
			return err
		}
		printSuccess("Generation quota reset")
	} else {
		resp, err := client.get(cmd.Context(), "/admin/quota")
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, &usage); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d/%d generation calls today\n", usage.CallsToday, usage.DailyCap)
	return nil
}

func init() {
	quotaCmd.AddCommand(quotaResetCmd)
}

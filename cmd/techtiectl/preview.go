package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/techtie/match-app/internal/matching"
	"github.com/techtie/match-app/internal/profile"
)

func previewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the deck a filter would produce",
		Long: `Preview applies filter criteria to a candidate file and prints the
resulting deck in order, with the active filter count shown on the
filter badge.`,
		Example: `  techtiectl preview --skills react,node.js --level junior
  techtiectl preview --file candidates.yaml --online`,
		Args: cobra.NoArgs,
		RunE: runPreview,
	}
	cmd.Flags().String("file", "", "candidate YAML file (default: deck.candidates_file)")
	cmd.Flags().StringSlice("skills", nil, "required skills, every one must match")
	cmd.Flags().String("level", "any", "experience level: any, entry, junior, mid, senior, lead")
	cmd.Flags().Bool("online", false, "only online candidates")
	return cmd
}

func runPreview(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		path = viper.GetString("deck.candidates_file")
	}
	skills, _ := cmd.Flags().GetStringSlice("skills")
	levelName, _ := cmd.Flags().GetString("level")
	online, _ := cmd.Flags().GetBool("online")

	level, ok := matching.ParseExperienceLevel(levelName)
	if !ok {
		return fmt.Errorf("unknown experience level %q", levelName)
	}

	cands, err := profile.LoadFile(path)
	if err != nil {
		return err
	}

	return writePreview(cmd.OutOrStdout(), cands, matching.FilterCriteria{
		Skills:          skills,
		ExperienceLevel: level,
		OnlineOnly:      online,
	})
}

// writePreview renders the filtered deck as a table.
func writePreview(out io.Writer, cands []matching.Candidate, criteria matching.FilterCriteria) error {
	q := matching.NewQueue(cands)
	s := q.ApplyFilter(criteria)

	fmt.Fprintf(out, "Filters: %d active (%s)\n", matching.ActiveFilterCount(s.Criteria), describe(s.Criteria))
	fmt.Fprintf(out, "Deck: %d of %d candidates\n", len(s.Candidates), q.SourceLen())
	if s.Exhausted() {
		fmt.Fprintln(out, "No candidates match these filters.")
		return nil
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tName\tTitle\tYears\tOnline\tSkills")
	for i, c := range s.Candidates {
		online := ""
		if c.Online {
			online = "yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
			i+1, c.ID, c.Name, c.Title, c.ExperienceYears, online, strings.Join(c.Skills, ", "))
	}
	return w.Flush()
}

func describe(c matching.FilterCriteria) string {
	parts := []string{"level=" + c.ExperienceLevel.String()}
	if len(c.Skills) > 0 {
		parts = append(parts, "skills="+strings.Join(c.Skills, ","))
	}
	if c.OnlineOnly {
		parts = append(parts, "online only")
	}
	return strings.Join(parts, ", ")
}

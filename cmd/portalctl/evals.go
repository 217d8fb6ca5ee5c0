package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"

	"github.com/iliyamo/recruiting-portal/internal/client"
	"github.com/iliyamo/recruiting-portal/internal/model"
)

func (a *app) evalsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "evals", Short: "Interview scorecards"}
	cmd.AddCommand(a.evalsListCmd(), a.evalsRecordCmd(), a.evalsImportCmd())
	return cmd
}

func parseIDList(s string) ([]uint64, error) {
	var out []uint64
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		id, err := parseID(p)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// recorder loads a recorder for the logged in evaluator.
func (a *app) recorder(cmd *cobra.Command, interviewArg, groups string) (*client.EvaluationRecorder, error) {
	interviewID, err := parseID(interviewArg)
	if err != nil {
		return nil, err
	}
	groupIDs, err := parseIDList(groups)
	if err != nil {
		return nil, err
	}
	c := a.client()
	me, err := c.Me(cmd.Context())
	if err != nil {
		return nil, userError(err, "failed to load account")
	}
	r := client.NewEvaluationRecorder(c, interviewID, me.UserID)
	if err := r.Load(cmd.Context(), groupIDs...); err != nil {
		return nil, userError(err, "failed to load interview")
	}
	return r, nil
}

func formatScores(scores map[model.RubricCategory]int) string {
	var parts []string
	for _, c := range model.RubricCategories {
		if v, ok := scores[c]; ok {
			parts = append(parts, fmt.Sprintf("%s=%d", c, v))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

func (a *app) evalsListCmd() *cobra.Command {
	var groups string
	cmd := &cobra.Command{
		Use:   "list INTERVIEW_ID",
		Short: "Show your scorecards for an interview",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.recorder(cmd, args[0], groups)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", r.Interview().Title)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "APP\tCANDIDATE\tDECISION\tSCORES\tNOTES")
			for _, app := range r.Applications() {
				e := r.GetEvaluation(app.ID)
				decision := "-"
				if e.Decision != nil {
					decision = string(*e.Decision)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", app.ID, app.CandidateName, decision, formatScores(e.RubricScores), e.Notes)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&groups, "groups", "", "comma separated group ids")
	return cmd
}

// parseScores reads category=score pairs.
func parseScores(pairs []string) (map[model.RubricCategory]int, error) {
	out := map[model.RubricCategory]int{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("score %q: want category=value", p)
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("score %q: %w", p, err)
		}
		out[model.RubricCategory(strings.TrimSpace(k))] = n
	}
	return out, nil
}

func (a *app) evalsRecordCmd() *cobra.Command {
	var (
		notes, decision string
		clearDecision   bool
		scores          []string
	)
	cmd := &cobra.Command{
		Use:   "record INTERVIEW_ID APPLICATION_ID",
		Short: "Update and save your scorecard for one application",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.recorder(cmd, args[0], "")
			if err != nil {
				return err
			}
			appID, err := parseID(args[1])
			if err != nil {
				return err
			}
			patch, err := buildPatch(cmd.Flags().Changed("notes"), notes, decision, clearDecision, scores)
			if err != nil {
				return err
			}
			if _, err := r.UpdateEvaluation(appID, patch); err != nil {
				return userError(err, "invalid evaluation")
			}
			saved, err := r.SaveEvaluation(cmd.Context(), appID)
			if err != nil {
				return userError(err, "failed to save evaluation")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved evaluation for application %d: %s\n", saved.ApplicationID, formatScores(saved.RubricScores))
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "notes, replaces the current ones")
	cmd.Flags().StringVar(&decision, "decision", "", "YES, MAYBE_YES, UNSURE, MAYBE_NO or NO")
	cmd.Flags().BoolVar(&clearDecision, "clear-decision", false, "remove the decision")
	cmd.Flags().StringArrayVar(&scores, "score", nil, "category=value, repeatable; value 0 clears")
	return cmd
}

func buildPatch(notesSet bool, notes, decision string, clearDecision bool, scores []string) (client.EvaluationPatch, error) {
	var p client.EvaluationPatch
	if notesSet {
		p.Notes = &notes
	}
	if decision != "" {
		d := model.Decision(strings.ToUpper(strings.TrimSpace(decision)))
		p.Decision = &d
	}
	p.ClearDecision = clearDecision
	rs, err := parseScores(scores)
	if err != nil {
		return p, err
	}
	p.RubricScores = rs
	return p, nil
}

// importEntry is one scorecard in an import file.
type importEntry struct {
	ApplicationID uint64         `koanf:"applicationId"`
	Notes         *string        `koanf:"notes"`
	Decision      string         `koanf:"decision"`
	RubricScores  map[string]int `koanf:"rubricScores"`
}

// readImport loads the "evaluations" list of a YAML (or JSON) file.
func readImport(path string) ([]importEntry, error) {
	k := koanf.New("::")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, err
	}
	var entries []importEntry
	if err := k.UnmarshalWithConf("evaluations", &entries, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}
	return entries, nil
}

func (a *app) evalsImportCmd() *cobra.Command {
	var groups string
	cmd := &cobra.Command{
		Use:   "import INTERVIEW_ID FILE",
		Short: "Apply scorecards from a file and save them all at once",
		Long: `FILE is YAML with a top-level "evaluations" list:

  evaluations:
    - applicationId: 12
      notes: clear communicator
      decision: MAYBE_YES
      rubricScores: {communication: 4, curiosity: 5}`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := readImport(args[1])
			if err != nil {
				return err
			}
			r, err := a.recorder(cmd, args[0], groups)
			if err != nil {
				return err
			}
			for _, en := range entries {
				p := client.EvaluationPatch{Notes: en.Notes, RubricScores: map[model.RubricCategory]int{}}
				if en.Decision != "" {
					d := model.Decision(strings.ToUpper(en.Decision))
					p.Decision = &d
				}
				for k, v := range en.RubricScores {
					p.RubricScores[model.RubricCategory(k)] = v
				}
				if _, err := r.UpdateEvaluation(en.ApplicationID, p); err != nil {
					return fmt.Errorf("application %d: %s", en.ApplicationID, client.UserMessage(err, "invalid evaluation"))
				}
			}

			out := r.SaveAll(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "saved %d evaluation(s)\n", len(out.Succeeded))
			sort.Slice(out.Failed, func(i, j int) bool { return out.Failed[i].ApplicationID < out.Failed[j].ApplicationID })
			for _, f := range out.Failed {
				fmt.Fprintf(cmd.ErrOrStderr(), "application %d: %s\n", f.ApplicationID, client.UserMessage(f.Err, "failed to save"))
			}
			return out.Err()
		},
	}
	cmd.Flags().StringVar(&groups, "groups", "", "comma separated group ids")
	return cmd
}

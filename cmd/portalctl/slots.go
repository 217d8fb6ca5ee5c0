package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/recruiting-portal/internal/client"
	"github.com/iliyamo/recruiting-portal/internal/displaytime"
	"github.com/iliyamo/recruiting-portal/internal/model"
)

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// userError turns err into the banner the user sees.
func userError(err error, fallback string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s", client.UserMessage(err, fallback))
}

func (a *app) slotsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "slots", Short: "Coffee chat slots"}
	cmd.AddCommand(
		a.slotsListCmd(), a.slotsCreateCmd(), a.slotsUpdateCmd(), a.slotsDeleteCmd(),
		a.slotsSignupCmd(), a.slotsAttendanceCmd(), a.slotsCalendarCmd(),
	)
	return cmd
}

func (a *app) manager(mine bool) *client.SlotManager {
	scope := client.ScopePublic
	if mine {
		scope = client.ScopeMember
	}
	return client.NewSlotManager(a.client(), scope)
}

func printSlots(w io.Writer, slots []model.MeetingSlot, withSignups bool) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tLOCATION\tTAKEN\tREMAINING\tSTATUS")
	now := time.Now()
	for _, s := range slots {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d/%d\t%d\t%s\n",
			s.ID, displaytime.FormatRange(s.StartTime, s.EndTime), s.Location, s.Taken(), s.Capacity, s.Remaining(), s.Status(now))
		if !withSignups {
			continue
		}
		for _, g := range s.Signups {
			mark := " "
			if g.Attended {
				mark = "x"
			}
			fmt.Fprintf(tw, "\t[%s] #%d %s <%s> %s\t\t\t\t\n", mark, g.ID, g.FullName, g.Email, g.DisplayStudentID())
		}
	}
	_ = tw.Flush()
}

func (a *app) slotsListCmd() *cobra.Command {
	var mine, all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open slots, or your own with --mine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m := a.manager(mine)
			if _, err := m.ListSlots(cmd.Context()); err != nil {
				return userError(err, "failed to load meeting slots")
			}
			slots := m.Slots()
			if !all {
				slots = m.OpenSlots(time.Now())
			}
			printSlots(cmd.OutOrStdout(), slots, mine)
			return nil
		},
	}
	cmd.Flags().BoolVar(&mine, "mine", false, "list the slots you own, with signups")
	cmd.Flags().BoolVar(&all, "all", false, "include slots that already started")
	return cmd
}

type slotFlags struct {
	location string
	start    string
	end      string
	capacity int
}

func (f *slotFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.location, "location", "", "where the chat happens")
	cmd.Flags().StringVar(&f.start, "start", "", "start, Pacific wall clock 2006-01-02T15:04")
	cmd.Flags().StringVar(&f.end, "end", "", "optional end, same format")
	cmd.Flags().IntVar(&f.capacity, "capacity", 0, "seats, 1 to 10")
}

// apply overlays the flags that were set on in.
func (f *slotFlags) apply(cmd *cobra.Command, in *model.SlotInput) error {
	if cmd.Flags().Changed("location") {
		in.Location = f.location
	}
	if cmd.Flags().Changed("start") {
		t, err := displaytime.FromInputValue(f.start)
		if err != nil {
			return err
		}
		in.StartTime = t
	}
	if cmd.Flags().Changed("end") {
		if f.end == "" {
			in.EndTime = nil
		} else {
			t, err := displaytime.FromInputValue(f.end)
			if err != nil {
				return err
			}
			in.EndTime = &t
		}
	}
	if cmd.Flags().Changed("capacity") {
		in.Capacity = f.capacity
	}
	return nil
}

func (a *app) slotsCreateCmd() *cobra.Command {
	var f slotFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Publish a new slot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var in model.SlotInput
			if err := f.apply(cmd, &in); err != nil {
				return err
			}
			s, err := a.manager(true).CreateSlot(cmd.Context(), in)
			if s == nil {
				return userError(err, "failed to create meeting slot")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created slot %d: %s at %s\n", s.ID, displaytime.Format(s.StartTime), s.Location)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func (a *app) slotsUpdateCmd() *cobra.Command {
	var f slotFlags
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Edit one of your slots; unset flags keep their value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			m := a.manager(true)
			if _, err := m.ListSlots(cmd.Context()); err != nil {
				return userError(err, "failed to load meeting slots")
			}
			ed, err := m.BeginEdit(id)
			if err != nil {
				return userError(err, "failed to edit meeting slot")
			}
			defer ed.Cancel()
			if err := f.apply(cmd, &ed.Input); err != nil {
				return err
			}
			s, err := ed.Submit(cmd.Context())
			if s == nil {
				return userError(err, "failed to update meeting slot")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated slot %d: %s at %s, capacity %d\n", s.ID, displaytime.Format(s.StartTime), s.Location, s.Capacity)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func stdinConfirmer(in io.Reader, out io.Writer) client.Confirmer {
	return func(prompt string) bool {
		fmt.Fprintf(out, "%s [y/N] ", prompt)
		line, _ := bufio.NewReader(in).ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		}
		return false
	}
}

func (a *app) slotsDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete one of your slots and cancel its signups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			m := a.manager(true)
			if _, err := m.ListSlots(cmd.Context()); err != nil {
				return userError(err, "failed to load meeting slots")
			}
			confirm := stdinConfirmer(cmd.InOrStdin(), cmd.OutOrStdout())
			if yes {
				confirm = func(string) bool { return true }
			}
			res, err := m.DeleteSlot(cmd.Context(), id, confirm)
			if res == nil {
				if errors.Is(err, client.ErrDeleteNotConfirmed) {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing deleted")
					return nil
				}
				return userError(err, "failed to delete meeting slot")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted slot %d, %d signup(s) cancelled\n", id, res.CancelledCount)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func (a *app) slotsSignupCmd() *cobra.Command {
	var in model.SignupInput
	cmd := &cobra.Command{
		Use:   "signup ID",
		Short: "Sign up for a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			m := a.manager(false)
			if _, err := m.ListSlots(cmd.Context()); err != nil {
				return userError(err, "failed to load meeting slots")
			}
			res, err := m.Signup(cmd.Context(), id, in)
			if res == nil {
				return userError(err, "failed to sign up")
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			if res.NeedsAccount {
				fmt.Fprintln(cmd.OutOrStdout(), "hint: create a portal account with this e-mail to track your application")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&in.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&in.Email, "email", "", "e-mail")
	cmd.Flags().StringVar(&in.StudentID, "student-id", "", "optional student id")
	return cmd
}

func (a *app) slotsAttendanceCmd() *cobra.Command {
	var attended bool
	cmd := &cobra.Command{
		Use:   "attendance SIGNUP_ID",
		Short: "Mark a signup on one of your slots as attended or not",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			g, err := a.manager(true).SetAttendance(cmd.Context(), id, attended)
			if g == nil {
				return userError(err, "failed to update attendance")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s attended: %t\n", g.FullName, g.Attended)
			return nil
		},
	}
	cmd.Flags().BoolVar(&attended, "attended", true, "attended (use --attended=false to clear)")
	return cmd
}

func (a *app) slotsCalendarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calendar ID",
		Short: "Print an add-to-calendar link for a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			m := a.manager(false)
			if _, err := m.ListSlots(cmd.Context()); err != nil {
				return userError(err, "failed to load meeting slots")
			}
			s, ok := m.Slot(id)
			if !ok {
				return userError(client.ErrSlotNotFound, "")
			}
			link, err := displaytime.CalendarLink(displaytime.CalendarEvent{
				Title:       "Coffee chat",
				Start:       s.StartTime,
				End:         s.EndTime,
				Description: "Coffee chat at " + s.Location,
				Location:    s.Location,
			})
			if err != nil {
				return errors.New("failed to open calendar")
			}
			fmt.Fprintln(cmd.OutOrStdout(), link)
			return nil
		},
	}
}

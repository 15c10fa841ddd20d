package plugins

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/chattobot/internal/args"
	"github.com/alfredjeanlab/chattobot/internal/handler"
	"github.com/alfredjeanlab/chattobot/internal/idgen"
	"github.com/alfredjeanlab/chattobot/internal/registry"
)

const dueFormat = "2006-01-02 15:04 UTC"

var namedTimes = map[string][2]int{
	"morning":   {9, 0},
	"noon":      {12, 0},
	"afternoon": {14, 0},
	"evening":   {18, 0},
	"night":     {22, 0},
}

const timePattern = `(\d{1,2}:\d{2}|morning|noon|afternoon|evening|night)`

var (
	reRemindTarget   = regexp.MustCompile(`(?is)^(me|@\S+)\s+(.+)$`)
	reRemindRelative = regexp.MustCompile(`(?is)^in\s+(\d+)\s*(m|mins?|minutes?|h|hrs?|hours?|d|days?)\s+to\s+(.+)$`)
	reRemindOn       = regexp.MustCompile(`(?is)^on\s+(\d{4}-\d{2}-\d{2})(?:\s+at\s+` + timePattern + `)?\s+to\s+(.+)$`)
	reRemindAt       = regexp.MustCompile(`(?is)^(?:at\s+)?` + timePattern + `\s+to\s+(.+)$`)
	reRemindTo       = regexp.MustCompile(`(?is)^to\s+(.+)$`)
)

// parseRemind splits "me in 5m to check the build" into its target ("me" or
// a user name without the @), due time and message. Times are UTC; a time of
// day without a date means its next occurrence, and no time at all means
// tomorrow morning.
func parseRemind(text string, now time.Time) (target string, due time.Time, msg string, err error) {
	now = now.UTC()
	m := reRemindTarget.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", time.Time{}, "", errors.New("could not parse target, use `me` or `@username`")
	}
	target = strings.TrimPrefix(m[1], "@")
	if strings.EqualFold(target, "me") && !strings.HasPrefix(m[1], "@") {
		target = "me"
	}
	rest := m[2]

	if m := reRemindRelative.FindStringSubmatch(rest); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return "", time.Time{}, "", fmt.Errorf("bad amount %q", m[1])
		}
		unit := time.Minute
		switch strings.ToLower(m[2])[0] {
		case 'h':
			unit = time.Hour
		case 'd':
			unit = 24 * time.Hour
		}
		return target, now.Add(time.Duration(n) * unit), strings.TrimSpace(m[3]), nil
	}

	if m := reRemindOn.FindStringSubmatch(rest); m != nil {
		day, err := time.Parse(time.DateOnly, m[1])
		if err != nil {
			return "", time.Time{}, "", fmt.Errorf("bad date %q", m[1])
		}
		when := m[2]
		if when == "" {
			when = "morning"
		}
		hour, minute, err := resolveTimeOfDay(when)
		if err != nil {
			return "", time.Time{}, "", err
		}
		due = time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC)
		if !due.After(now) {
			return "", time.Time{}, "", fmt.Errorf("%s is in the past", due.Format(dueFormat))
		}
		return target, due, strings.TrimSpace(m[3]), nil
	}

	when, msg := "morning", ""
	if m := reRemindAt.FindStringSubmatch(rest); m != nil {
		when, msg = m[1], m[2]
	} else if m := reRemindTo.FindStringSubmatch(rest); m != nil {
		msg = m[1]
	} else {
		return "", time.Time{}, "", errors.New("could not parse time, use `in <N>m/h/d`, `on YYYY-MM-DD`, `at HH:MM` or morning/noon/afternoon/evening/night")
	}
	hour, minute, err := resolveTimeOfDay(when)
	if err != nil {
		return "", time.Time{}, "", err
	}
	return target, nextTimeOfDay(now, hour, minute), strings.TrimSpace(msg), nil
}

func resolveTimeOfDay(when string) (hour, minute int, err error) {
	when = strings.ToLower(when)
	if hm, ok := namedTimes[when]; ok {
		return hm[0], hm[1], nil
	}
	hs, ms, _ := strings.Cut(when, ":")
	hour, herr := strconv.Atoi(hs)
	minute, merr := strconv.Atoi(ms)
	if herr != nil || merr != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("bad time %q", when)
	}
	return hour, minute, nil
}

func nextTimeOfDay(now time.Time, hour, minute int) time.Time {
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// Remind sets, lists and cancels reminders. Reminders and their checker
// live in Deps.Reminders, so they survive a reload of the group.
func Remind(d *Deps) registry.Group {
	usage := strings.Join([]string{
		fmt.Sprintf("Usage: `%sremind me in 5m to check the build`", d.Prefix),
		fmt.Sprintf("       `%sremind me on 2026-03-01 at 14:00 to submit report`", d.Prefix),
		fmt.Sprintf("       `%sremind @user in 1h to review PR`", d.Prefix),
		fmt.Sprintf("       `%sremind cancel <id>` to cancel a reminder", d.Prefix),
		fmt.Sprintf("See also: `%sreminders` to list pending reminders.", d.Prefix),
	}, "\n")

	cancel := func(ctx context.Context, hc *handler.Context, id string) error {
		actor := hc.Actor()
		if actor == nil {
			return nil
		}
		rem, err := d.Reminders.Cancel(id, actor.ID)
		switch {
		case errors.Is(err, ErrReminderNotFound):
			return hc.Reply(ctx, fmt.Sprintf("No reminder found with id `%s`.", id))
		case errors.Is(err, ErrNotYourReminder):
			return hc.Reply(ctx, "You can only cancel your own reminders.")
		case err != nil:
			return fmt.Errorf("cancelling reminder: %w", err)
		}
		return hc.Reply(ctx, fmt.Sprintf("Cancelled reminder `%s`: %s", id, rem.Message))
	}

	remind := func(ctx context.Context, hc *handler.Context, vals args.Values) error {
		req := strings.TrimSpace(vals.String("request"))
		if req == "" {
			return hc.Reply(ctx, usage)
		}
		if id, ok := strings.CutPrefix(req, "cancel "); ok {
			return cancel(ctx, hc, strings.TrimSpace(id))
		}
		actor := hc.Actor()
		if actor == nil {
			return nil
		}

		now := d.Now().UTC()
		target, due, msg, err := parseRemind(req, now)
		if err != nil {
			return hc.Reply(ctx, "Could not parse reminder: "+err.Error())
		}
		if msg == "" {
			return hc.Reply(ctx, "Missing message. Add `to <message>` at the end.")
		}

		rem := Reminder{
			ID:        idgen.Short(),
			CreatorID: actor.ID,
			SpaceID:   hc.Event.SpaceID,
			RoomID:    hc.Event.RoomID,
			DueAt:     due,
			Message:   msg,
			CreatedAt: now,
		}
		if target == "me" {
			rem.TargetID, rem.TargetLogin = actor.ID, actor.Login
			rem.TargetName = actor.DisplayName
			if rem.TargetName == "" {
				rem.TargetName = actor.Login
			}
		} else {
			e, ok := d.Presence.Lookup(target)
			if !ok {
				return hc.Reply(ctx, fmt.Sprintf("Could not find user `%s`.", target))
			}
			rem.TargetID, rem.TargetName, rem.TargetLogin = e.ActorID, e.Name(), e.Login
		}
		if err := d.Reminders.Add(rem); err != nil {
			return fmt.Errorf("saving reminder: %w", err)
		}

		if err := hc.React(ctx, "⏰"); err != nil {
			hc.Logger.Debug("plugins: reacting to reminder failed", "err", err)
		}
		who := "you"
		if rem.TargetID != actor.ID {
			who = "**" + rem.TargetName + "**"
		}
		return hc.Reply(ctx, fmt.Sprintf("Reminder set for %s at %s: %s (id: `%s`)", who, due.Format(dueFormat), msg, rem.ID))
	}

	list := func(ctx context.Context, hc *handler.Context, _ args.Values) error {
		actor := hc.Actor()
		if actor == nil {
			return nil
		}
		mine := d.Reminders.For(actor.ID)
		if len(mine) == 0 {
			return hc.Reply(ctx, "You have no pending reminders.")
		}
		var b strings.Builder
		b.WriteString("**Your pending reminders:**")
		for _, r := range mine {
			who := "you"
			if r.TargetID != actor.ID {
				who = "@" + r.TargetName
			}
			fmt.Fprintf(&b, "\n- `%s` %s → %s: %s", r.ID, r.DueAt.Format(dueFormat), who, r.Message)
		}
		return hc.Reply(ctx, b.String())
	}

	return registry.Group{
		Name:        "remind",
		Description: "Timed reminders",
		Entries: []registry.Entry{
			registry.CommandEntry("remind", "Set or cancel a reminder",
				[]args.Param{{Name: "request", Kind: args.String, Optional: true}}, remind, "rm"),
			registry.CommandEntry("reminders", "List your pending reminders", nil, list),
		},
		OnLoad: func(context.Context) error {
			if d.Poster == nil {
				return errors.New("no message poster configured")
			}
			d.Reminders.StartChecker(d.Poster, reminderCheckInterval, d.Now)
			return nil
		},
		OnUnload: func(context.Context) error {
			if _, ok := d.Registry.Snapshot().Group("remind"); !ok {
				d.Reminders.Stop()
			}
			return nil
		},
	}
}

package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	goquerycache "github.com/dgduncan/go-query-cache"
	"github.com/dgduncan/go-query-cache/events"
)

// LoginCmd signs in with name and password.
type LoginCmd struct {
	FirstName string `help:"First name." required:""`
	LastName  string `help:"Last name." required:""`
	Password  string `help:"Password." required:"" env:"EVENTSCTL_PASSWORD"`
}

func (c *LoginCmd) Run(a *app) error {
	if _, err := a.api.Login(a.ctx, events.LoginRequest{
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Password:  c.Password,
	}); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := a.saveSession(); err != nil {
		return fmt.Errorf("login: save session: %w", err)
	}
	_, _ = fmt.Fprintln(a.out, "signed in")
	return nil
}

type LogoutCmd struct{}

func (c *LogoutCmd) Run(a *app) error {
	if err := a.session.Clear(a.ctx, a.store); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	_, _ = fmt.Fprintln(a.out, "signed out")
	return nil
}

// EventsCmd lists events once.
type EventsCmd struct {
	Category int     `help:"Only events of this category id."`
	Search   string  `help:"Free text search."`
	Radius   float64 `help:"Only events within this radius of --lat/--lng."`
	Lat      float64 `help:"Latitude for --radius."`
	Lng      float64 `help:"Longitude for --radius."`
}

func (c *EventsCmd) filter() events.Filter {
	f := events.Filter{CategoryID: c.Category, Search: c.Search}
	if c.Radius > 0 {
		lat, lng := c.Lat, c.Lng
		f.Radius, f.UserLat, f.UserLng = c.Radius, &lat, &lng
	}
	return f
}

func (c *EventsCmd) Run(a *app) error {
	sub, err := a.api.Events(a.ctx, c.filter())
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	list, err := sub.Await(a.ctx)
	if err != nil {
		return explain(err)
	}
	printEvents(a.out, list)
	return nil
}

type JoinCmd struct {
	EventID int `arg:"" help:"Event id."`
}

func (c *JoinCmd) Run(a *app) error {
	resp, err := a.api.JoinEvent(a.ctx, c.EventID)
	if err != nil {
		return explain(err)
	}
	_, _ = fmt.Fprintln(a.out, resp.Message)
	return nil
}

type LeaveCmd struct {
	EventID int `arg:"" help:"Event id."`
}

func (c *LeaveCmd) Run(a *app) error {
	if err := a.api.LeaveEvent(a.ctx, c.EventID); err != nil {
		return explain(err)
	}
	_, _ = fmt.Fprintln(a.out, "left event", c.EventID)
	return nil
}

type ProfileCmd struct{}

func (c *ProfileCmd) Run(a *app) error {
	sub, err := a.api.Profile(a.ctx)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	p, err := sub.Await(a.ctx)
	if err != nil {
		return explain(err)
	}

	a.api.SyncSession(p)
	if err := a.saveSession(); err != nil {
		a.logger.WarnContext(a.ctx, "error saving session", "error", err)
	}

	_, _ = fmt.Fprintf(a.out, "%s %s (id %d, admin %t)\n", p.FirstName, p.LastName, p.ID, p.IsAdmin)
	printEvents(a.out, p.Events)
	return nil
}

// WatchCmd keeps a subscription open and prints every settled change.
type WatchCmd struct {
	EventsCmd

	Interval time.Duration `help:"Refetch interval; 0 only prints pushed changes." default:"30s"`
}

func (c *WatchCmd) Run(a *app) error {
	sub, err := a.api.Events(a.ctx, c.filter())
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	var tick <-chan time.Time
	if c.Interval > 0 {
		t := time.NewTicker(c.Interval)
		defer t.Stop()
		tick = t.C
	}

	var last time.Time
	for {
		select {
		case <-a.ctx.Done():
			return nil
		case <-tick:
			if err := sub.Refetch(a.ctx); err != nil {
				return err
			}
		case <-sub.Changes():
			snap := sub.Snapshot()
			switch {
			case snap.IsError():
				_, _ = fmt.Fprintf(a.out, "%s refresh failed: %v\n", time.Now().Format("15:04:05"), explain(snap.Err))
			case snap.IsSuccess() && snap.FetchedAt != last:
				last = snap.FetchedAt
				list, err := goquerycache.Decode[[]events.Event](snap)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(a.out, "%s %d events\n", snap.FetchedAt.Format("15:04:05"), len(list))
				printEvents(a.out, list)
			}
		}
	}
}

func printEvents(w io.Writer, list []events.Event) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tSTART\tEND")
	for _, e := range list {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.ID, e.Name, e.StartDate, e.EndDate)
	}
	_ = tw.Flush()
}

// explain turns authorization failures into a hint to sign in again.
func explain(err error) error {
	var reqErr *goquerycache.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w (run eventsctl login)", err)
		}
	}
	return err
}

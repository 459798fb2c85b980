// Command ticketctl runs operator maintenance against the ticket store: migrations, events,
// manual tickets, scan resets, deletions and reminder mail.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/makors/vender/internal/config"
	"github.com/makors/vender/internal/kafka"
	"github.com/makors/vender/internal/logger"
	"github.com/makors/vender/internal/mailer"
	"github.com/makors/vender/internal/migration"
	"github.com/makors/vender/internal/models"
	"github.com/makors/vender/internal/notify"
	"github.com/makors/vender/internal/services"
	"github.com/makors/vender/internal/storage"
)

// A reminder run queues a whole event at once.
const cliQueueBuffer = 10000

const usage = `Usage: ticketctl [--env dev] [--env-file path] <command> [flags]

Commands:
  migrate          apply the schema (and --file extra SQL)
  create-event     --name NAME [--id ID] [--price PRICE_ID]
  list-events
  list-tickets     [--event ID] [--customer EMAIL] [--unscanned]
  reset-scan       --ticket ID
  delete-ticket    --ticket ID
  delete-customer  --email EMAIL
  issue-ticket     --event ID --email EMAIL [--name STUDENT]
  remind           --event ID
`

type app struct {
	out   io.Writer
	store storage.Store
	admin *services.AdminService
	close func(ctx context.Context)
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "ticketctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := pflag.NewFlagSet("ticketctl", pflag.ContinueOnError)
	global.SetInterspersed(false)
	env := global.String("env", "dev", "environment used to pick .env.<env>")
	envFile := global.String("env-file", "", "explicit .env file")
	global.Usage = func() { fmt.Fprint(out, usage) }
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	loaded := migration.LoadEnv(*env, *envFile)
	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Close()
	if loaded != "" {
		log.Info("ENV", "Loaded environment from "+loaded)
	}

	command, rest := global.Arg(0), global.Args()[1:]
	if command == "migrate" {
		return migrate(ctx, cfg, log, rest)
	}

	a, err := open(cfg, log, out)
	if err != nil {
		return err
	}
	defer func() {
		shutdown, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a.close(shutdown)
	}()

	switch command {
	case "create-event":
		return a.createEvent(ctx, rest)
	case "list-events":
		return a.listEvents(ctx)
	case "list-tickets":
		return a.listTickets(ctx, rest)
	case "reset-scan":
		return a.resetScan(ctx, rest)
	case "delete-ticket":
		return a.deleteTicket(ctx, rest)
	case "delete-customer":
		return a.deleteCustomer(ctx, rest)
	case "issue-ticket":
		return a.issueTicket(ctx, rest)
	case "remind":
		return a.remind(ctx, rest)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func migrate(ctx context.Context, cfg *config.Config, log *logger.Logger, args []string) error {
	fs := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	file := fs.String("file", "", "extra SQL file to execute after the schema")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return migration.Run(ctx, cfg.Database, *file, log)
}

// open wires the store and a notifier. Mail goes through Kafka when enabled so the server's
// consumer delivers it, otherwise through a local queue drained before exit.
func open(cfg *config.Config, log *logger.Logger, out io.Writer) (*app, error) {
	store, err := storage.Open(cfg.Database, log)
	if err != nil {
		return nil, err
	}

	var (
		notifier services.Notifier
		closers  []func(ctx context.Context)
	)
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka, false, log)
		if err != nil {
			store.Close()
			return nil, err
		}
		notifier = producer
		closers = append(closers, func(context.Context) { producer.Close() })
	} else {
		queue := notify.NewQueue(config.NotifyConfig{Workers: cfg.Notify.Workers, Buffer: cliQueueBuffer}, mailer.New(cfg.SMTP, log), log)
		queue.Start()
		notifier = queue
		closers = append(closers, func(ctx context.Context) {
			if err := queue.Close(ctx); err != nil {
				log.Error("NOTIFY", err.Error())
			}
		})
	}

	return &app{
		out:   out,
		store: store,
		admin: services.NewAdminService(store, notifier, log),
		close: func(ctx context.Context) {
			for _, c := range closers {
				c(ctx)
			}
			store.Close()
		},
	}, nil
}

func (a *app) createEvent(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("create-event", pflag.ContinueOnError)
	id := fs.String("id", "", "event id (derived from the name when empty)")
	name := fs.String("name", "", "event name")
	price := fs.String("price", "", "Stripe price id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	event, err := a.admin.CreateEvent(ctx, *id, *name, *price)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "created event %s (%s)\n", event.ID, event.Name)
	return nil
}

func (a *app) listEvents(ctx context.Context) error {
	events, err := services.NewEventService(a.store).List(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTICKETS\tSCANNED\tCREATED")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", e.ID, e.Name, e.TicketCount, e.ScannedCount, e.CreatedAt.Format(time.DateTime))
	}
	return w.Flush()
}

func (a *app) listTickets(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("list-tickets", pflag.ContinueOnError)
	eventID := fs.String("event", "", "only tickets for this event")
	email := fs.String("customer", "", "only tickets held by this email")
	unscanned := fs.Bool("unscanned", false, "only tickets not yet scanned")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tickets, err := a.admin.ListTickets(ctx, storage.TicketFilter{EventID: *eventID, Email: *email, UnscannedOnly: *unscanned})
	if err != nil {
		return err
	}
	return writeTickets(a.out, tickets)
}

func writeTickets(out io.Writer, tickets []*models.TicketDetails) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TICKET\tEVENT\tEMAIL\tNAME\tSCANNED")
	for _, t := range tickets {
		scanned := "-"
		if t.ScannedAt != nil {
			scanned = t.ScannedAt.Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.TicketID, t.EventID, t.Email, models.StringValue(t.StudentName, "-"), scanned)
	}
	return w.Flush()
}

func ticketFlag(name string, args []string) (string, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	id := fs.String("ticket", "", "ticket id")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if *id == "" {
		return "", errors.New("--ticket is required")
	}
	return *id, nil
}

func (a *app) resetScan(ctx context.Context, args []string) error {
	id, err := ticketFlag("reset-scan", args)
	if err != nil {
		return err
	}
	if err := a.admin.ResetScan(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "ticket %s can be scanned again\n", id)
	return nil
}

func (a *app) deleteTicket(ctx context.Context, args []string) error {
	id, err := ticketFlag("delete-ticket", args)
	if err != nil {
		return err
	}
	if err := a.admin.DeleteTicket(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted ticket %s\n", id)
	return nil
}

func (a *app) deleteCustomer(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("delete-customer", pflag.ContinueOnError)
	email := fs.String("email", "", "customer email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("--email is required")
	}

	removed, err := a.admin.DeleteCustomer(ctx, *email)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted customer %s and %d tickets\n", *email, removed)
	return nil
}

func (a *app) issueTicket(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("issue-ticket", pflag.ContinueOnError)
	eventID := fs.String("event", "", "event id")
	email := fs.String("email", "", "customer email")
	name := fs.String("name", "", "student name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ticket, err := a.admin.IssueManualTicket(ctx, *eventID, *email, *name)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "issued ticket %s to %s\n", ticket.ID, *email)
	return nil
}

func (a *app) remind(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("remind", pflag.ContinueOnError)
	eventID := fs.String("event", "", "event id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *eventID == "" {
		return errors.New("--event is required")
	}

	queued, err := a.admin.SendReminders(ctx, *eventID)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "queued %d reminders for %s\n", queued, *eventID)
	return nil
}

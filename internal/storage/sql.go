package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/makors/vender/internal/config"
	"github.com/makors/vender/internal/logger"
	"github.com/makors/vender/internal/metrics"
	"github.com/makors/vender/internal/models"
)

const (
	driverMySQL  = "mysql"
	driverSQLite = "sqlite"
	driverMemory = "memory"
)

// SQLStore is the relational ticket store. Writes go through plain SQL so the
// conditional update and the upsert stay single statements; reads use bun.
type SQLStore struct {
	db      *bun.DB
	driver  string
	timeout time.Duration
	log     *logger.Logger
}

func NewMySQLStore(cfg config.DatabaseConfig, log *logger.Logger) (*SQLStore, error) {
	log.LogDatabase("CONNECT", driverMySQL, fmt.Sprintf("Connecting to MySQL at %s:%s", cfg.Host, cfg.Port))

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	sqldb, err := sql.Open(driverMySQL, dsn)
	if err != nil {
		log.Error("DATABASE", "Failed to open MySQL connection: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	return openStore(bun.NewDB(sqldb, mysqldialect.New()), driverMySQL, cfg.Timeout, log)
}

// NewSQLiteStore opens an embedded database at cfg.Path. SQLite allows a single writer,
// so the pool is capped at one connection.
func NewSQLiteStore(cfg config.DatabaseConfig, log *logger.Logger) (*SQLStore, error) {
	log.LogDatabase("CONNECT", driverSQLite, "Opening SQLite database at "+cfg.Path)

	dsn := cfg.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqldb, err := sql.Open(driverSQLite, dsn)
	if err != nil {
		log.Error("DATABASE", "Failed to open SQLite database: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqldb.SetMaxOpenConns(1)

	return openStore(bun.NewDB(sqldb, sqlitedialect.New()), driverSQLite, cfg.Timeout, log)
}

func openStore(db *bun.DB, driver string, timeout time.Duration, log *logger.Logger) (*SQLStore, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	store := &SQLStore{db: db, driver: driver, timeout: timeout, log: log}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Error("DATABASE", fmt.Sprintf("Failed to ping %s: %s", driver, err.Error()))
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		log.Error("DATABASE", "Failed to initialize tables: "+err.Error())
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	log.LogDatabase("SUCCESS", driver, "Connection established and tables initialized")
	return store, nil
}

// Migrate creates the events, customers and tickets tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	schema := mysqlSchema
	if s.driver == driverSQLite {
		schema = sqliteSchema
	}

	s.log.LogDatabase("MIGRATE", s.driver, fmt.Sprintf("Applying %d schema statements", len(schema)))
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// DB exposes the underlying handle for migrations that ship extra SQL files.
func (s *SQLStore) DB() *bun.DB {
	return s.db
}

func (s *SQLStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *SQLStore) CreateEvent(ctx context.Context, event *models.Event) error {
	defer metrics.ObserveStore("create_event", time.Now())
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now

	if _, err := s.db.NewInsert().Model(event).Exec(ctx); err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create event: %w", err)
	}

	s.log.LogDatabase("INSERT", s.driver, fmt.Sprintf("Event %s created", event.ID))
	return nil
}

func (s *SQLStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	defer metrics.ObserveStore("get_event", time.Now())
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	event := new(models.Event)
	if err := s.db.NewSelect().Model(event).Where("id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

func (s *SQLStore) ListEvents(ctx context.Context) ([]*models.EventSummary, error) {
	defer metrics.ObserveStore("list_events", time.Now())
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	events := make([]*models.EventSummary, 0)
	err := s.db.NewSelect().
		TableExpr("events AS e").
		ColumnExpr("e.id, e.name, e.stripe_price_id, e.created_at, e.updated_at").
		ColumnExpr("COUNT(t.id) AS ticket_count").
		ColumnExpr("COUNT(t.scanned_at) AS scanned_count").
		Join("LEFT JOIN tickets AS t ON t.event_id = e.id").
		GroupExpr("e.id, e.name, e.stripe_price_id, e.created_at, e.updated_at").
		OrderExpr("e.created_at DESC").
		Scan(ctx, &events)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	s.log.LogDatabase("SELECT", s.driver, fmt.Sprintf("Listed %d events", len(events)))
	return events, nil
}

func (s *SQLStore) UpsertCustomer(ctx context.Context, email, stripeCustomerID string) (*models.Customer, error) {
	defer metrics.ObserveStore("upsert_customer", time.Now())
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)

	var id int64
	if s.driver == driverSQLite {
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO customers (email, stripe_customer_id, created_at) VALUES (?, ?, ?)
			ON CONFLICT (email) DO UPDATE SET
				stripe_customer_id = COALESCE(NULLIF(excluded.stripe_customer_id, ''), customers.stripe_customer_id)
			RETURNING id`,
			email, stripeCustomerID, now,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert customer: %w", err)
		}
	} else {
		// LAST_INSERT_ID(id) makes the existing row id visible through LastInsertId on update.
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO customers (email, stripe_customer_id, created_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE
				stripe_customer_id = COALESCE(NULLIF(VALUES(stripe_customer_id), ''), stripe_customer_id),
				id = LAST_INSERT_ID(id)`,
			email, stripeCustomerID, now,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert customer: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("failed to read customer id: %w", err)
		}
	}

	customer := new(models.Customer)
	if err := s.db.NewSelect().Model(customer).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to load customer %d: %w", id, err)
	}
	return customer, nil
}

func (s *SQLStore) DeleteCustomer(ctx context.Context, email string) (int64, error) {
	defer metrics.ObserveStore("delete_customer", time.Now())
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var removed int64
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		customer := new(models.Customer)
		if err := tx.NewSelect().Model(customer).Where("email = ?", email).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM tickets WHERE customer_id = ?", customer.ID)
		if err != nil {
			return err
		}
		removed, _ = res.RowsAffected()

		_, err = tx.ExecContext(ctx, "DELETE FROM customers WHERE id = ?", customer.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to delete customer: %w", err)
	}

	s.log.LogDatabase("DELETE", s.driver, fmt.Sprintf("Customer %s deleted with %d tickets", email, removed))
	return removed, nil
}

func (s *SQLStore) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	defer metrics.ObserveStore("create_ticket", time.Now())
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}

	if _, err := s.db.NewInsert().Model(ticket).Exec(ctx); err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create ticket: %w", err)
	}

	s.log.LogDatabase("INSERT", s.driver, fmt.Sprintf("Ticket %s created for event %s", ticket.ID, ticket.EventID))
	return nil
}

func (s *SQLStore) detailsQuery() *bun.SelectQuery {
	return s.db.NewSelect().
		TableExpr("tickets AS t").
		ColumnExpr("t.id AS ticket_id, t.event_id, e.name AS event_name").
		ColumnExpr("t.customer_id, c.email, t.student_name, t.scanned_at, t.created_at").
		Join("JOIN customers AS c ON c.id = t.customer_id").
		Join("JOIN events AS e ON e.id = t.event_id")
}

func (s *SQLStore) GetTicketDetails(ctx context.Context, ticketID string) (*models.TicketDetails, error) {
	defer metrics.ObserveStore("get_ticket", time.Now())
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	details := new(models.TicketDetails)
	if err := s.detailsQuery().Where("t.id = ?", ticketID).Scan(ctx, details); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return details, nil
}

func (s *SQLStore) ListTickets(ctx context.Context, filter TicketFilter) ([]*models.TicketDetails, error) {
	defer metrics.ObserveStore("list_tickets", time.Now())
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	q := s.detailsQuery()
	if filter.EventID != "" {
		q = q.Where("t.event_id = ?", filter.EventID)
	}
	if filter.Email != "" {
		q = q.Where("c.email = ?", filter.Email)
	}
	if filter.UnscannedOnly {
		q = q.Where("t.scanned_at IS NULL")
	}

	tickets := make([]*models.TicketDetails, 0)
	if err := q.OrderExpr("t.created_at DESC, t.id ASC").Scan(ctx, &tickets); err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, nil
}

func (s *SQLStore) MarkScanned(ctx context.Context, ticketID string, at time.Time) (bool, error) {
	defer metrics.ObserveStore("mark_scanned", time.Now())
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		"UPDATE tickets SET scanned_at = ? WHERE id = ? AND scanned_at IS NULL", at, ticketID)
	if err != nil {
		return false, fmt.Errorf("failed to mark ticket scanned: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

func (s *SQLStore) ResetScan(ctx context.Context, ticketID string) error {
	defer metrics.ObserveStore("reset_scan", time.Now())
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	exists, err := s.db.NewSelect().Model((*models.Ticket)(nil)).Where("id = ?", ticketID).Exists(ctx)
	if err != nil {
		return fmt.Errorf("failed to check ticket: %w", err)
	}
	if !exists {
		return ErrNotFound
	}

	if _, err := s.db.ExecContext(ctx, "UPDATE tickets SET scanned_at = NULL WHERE id = ?", ticketID); err != nil {
		return fmt.Errorf("failed to reset scan: %w", err)
	}

	s.log.LogDatabase("UPDATE", s.driver, fmt.Sprintf("Scan reset for ticket %s", ticketID))
	return nil
}

func (s *SQLStore) DeleteTicket(ctx context.Context, ticketID string) error {
	defer metrics.ObserveStore("delete_ticket", time.Now())
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, "DELETE FROM tickets WHERE id = ?", ticketID)
	if err != nil {
		return fmt.Errorf("failed to delete ticket: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	s.log.LogDatabase("DELETE", s.driver, fmt.Sprintf("Ticket %s deleted", ticketID))
	return nil
}

func (s *SQLStore) SearchCandidates(ctx context.Context, terms []string, limit int) ([]*models.LookupCandidate, error) {
	defer metrics.ObserveStore("search_candidates", time.Now())
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	candidates := make([]*models.LookupCandidate, 0)
	if len(terms) == 0 {
		return candidates, nil
	}

	if err := s.searchQuery(terms, limit).Scan(ctx, &candidates); err != nil {
		return nil, fmt.Errorf("failed to search tickets: %w", err)
	}

	s.log.LogDatabase("SELECT", s.driver, fmt.Sprintf("Lookup matched %d candidates", len(candidates)))
	return candidates, nil
}

// searchQuery matches terms against lowercased columns. customers.email keeps a binary
// collation for its unique key, so MySQL LIKE on the raw column would be case-sensitive.
func (s *SQLStore) searchQuery(terms []string, limit int) *bun.SelectQuery {
	return s.db.NewSelect().
		TableExpr("tickets AS t").
		ColumnExpr("t.id AS ticket_id, t.event_id, c.email, t.student_name, t.scanned_at, t.created_at").
		Join("JOIN customers AS c ON c.id = t.customer_id").
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			for _, term := range terms {
				pattern := "%" + EscapeLike(strings.ToLower(term)) + "%"
				q = q.WhereOr("LOWER(t.student_name) LIKE ? ESCAPE '!'", pattern).
					WhereOr("LOWER(c.email) LIKE ? ESCAPE '!'", pattern).
					WhereOr("LOWER(t.id) LIKE ? ESCAPE '!'", pattern)
			}
			return q
		}).
		OrderExpr("t.created_at DESC, t.id ASC").
		Limit(limit)
}

func (s *SQLStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	s.log.LogDatabase("CLOSE", s.driver, "Closing database connection")
	return s.db.Close()
}

// EscapeLike escapes LIKE wildcards with '!', which both MySQL and SQLite accept in an
// ESCAPE clause without further quoting.
func EscapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}

func isDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"
	"golang.org/x/sync/errgroup"

	"festpass/internal/model"
)

const uniqueViolation = "23505"

const eventColumns = `id, slug, name, category, description, fee, fee_mode, max_participants,
	current_participants, team_size_min, team_size_max, is_active, registration_deadline,
	event_date, venue, created_at, updated_at`

const registrationColumns = `id, ticket_id, name, email, phone, college, year, department,
	event_ids, teams, total_amount, payment_status, razorpay_order_id, razorpay_payment_id,
	razorpay_signature, checked_in, checked_in_at, checked_in_by, qr_code, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

type Postgres struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewPostgres(db *dbpg.DB, log *zerolog.Logger) (*Postgres, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Postgres{db: db, log: log}, nil
}

func (r *Postgres) Ping(ctx context.Context) error {
	return r.db.Master.PingContext(ctx)
}

func (r *Postgres) MigrateUp(migrationsDir string) error {
	return r.applyMigrations(migrationsDir, "*.up.sql", false)
}

// MigrateDown drops the schema. Only test teardown calls it.
func (r *Postgres) MigrateDown(migrationsDir string) error {
	return r.applyMigrations(migrationsDir, "*.down.sql", true)
}

func (r *Postgres) applyMigrations(dir, pattern string, reverse bool) error {
	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}
	sort.Strings(files)
	if reverse {
		sort.Sort(sort.Reverse(sort.StringSlice(files)))
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}
		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Int("files", len(files)).Msgf("Migrations %s applied from %s", pattern, dir)
	return nil
}

func scanEvent(row scanner) (model.Event, error) {
	var e model.Event
	err := row.Scan(
		&e.ID, &e.Slug, &e.Name, &e.Category, &e.Description, &e.Fee, &e.FeeMode,
		&e.MaxParticipants, &e.CurrentParticipants, &e.TeamSizeMin, &e.TeamSizeMax,
		&e.IsActive, &e.RegistrationDeadline, &e.EventDate, &e.Venue, &e.CreatedAt, &e.UpdatedAt,
	)
	return e, err
}

func (r *Postgres) queryEvents(ctx context.Context, query string, args ...any) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	events := make([]model.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *Postgres) ListActiveEvents(ctx context.Context) ([]model.Event, error) {
	return r.queryEvents(ctx, `SELECT `+eventColumns+` FROM events
		WHERE is_active ORDER BY category, name`)
}

func (r *Postgres) GetActiveEventsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Event, error) {
	return r.queryEvents(ctx, `SELECT `+eventColumns+` FROM events
		WHERE id = ANY($1::uuid[]) AND is_active`, pq.Array(uuidStrings(ids)))
}

func (r *Postgres) GetEventsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Event, error) {
	return r.queryEvents(ctx, `SELECT `+eventColumns+` FROM events
		WHERE id = ANY($1::uuid[])`, pq.Array(uuidStrings(ids)))
}

// UpsertEvent creates or updates the event by slug. The participant counter is
// never overwritten.
func (r *Postgres) UpsertEvent(ctx context.Context, e *model.Event) error {
	if e.ID == uuid.Nil {
		e.ID = EventIDForSlug(e.Slug)
	}
	query := `
		INSERT INTO events (id, slug, name, category, description, fee, fee_mode, max_participants,
		                    team_size_min, team_size_max, is_active, registration_deadline, event_date, venue)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			description = EXCLUDED.description,
			fee = EXCLUDED.fee,
			fee_mode = EXCLUDED.fee_mode,
			max_participants = EXCLUDED.max_participants,
			team_size_min = EXCLUDED.team_size_min,
			team_size_max = EXCLUDED.team_size_max,
			is_active = EXCLUDED.is_active,
			registration_deadline = EXCLUDED.registration_deadline,
			event_date = EXCLUDED.event_date,
			venue = EXCLUDED.venue,
			updated_at = NOW()
		RETURNING id, current_participants, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		e.ID, e.Slug, e.Name, e.Category, e.Description, e.Fee, e.FeeMode, e.MaxParticipants,
		e.TeamSizeMin, e.TeamSizeMax, e.IsActive, e.RegistrationDeadline, e.EventDate, e.Venue,
	).Scan(&e.ID, &e.CurrentParticipants, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert event %s: %w", e.Slug, err)
	}
	return nil
}

func scanRegistration(row scanner) (*model.Registration, error) {
	var (
		reg                           model.Registration
		eventIDs                      []string
		teams                         []byte
		paymentID, signature, qrAsset sql.NullString
	)
	err := row.Scan(
		&reg.ID, &reg.TicketID, &reg.Name, &reg.Email, &reg.Phone, &reg.College, &reg.Year,
		&reg.Department, pq.Array(&eventIDs), &teams, &reg.TotalAmount, &reg.PaymentStatus,
		&reg.OrderID, &paymentID, &signature, &reg.CheckedIn, &reg.CheckedInAt, &reg.CheckedInBy,
		&qrAsset, &reg.CreatedAt, &reg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	reg.PaymentID = paymentID.String
	reg.Signature = signature.String
	reg.PassAsset = qrAsset.String

	reg.EventIDs = make([]uuid.UUID, 0, len(eventIDs))
	for _, s := range eventIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("registration %s has bad event id %q: %w", reg.ID, s, err)
		}
		reg.EventIDs = append(reg.EventIDs, id)
	}
	if len(teams) > 0 {
		if err := json.Unmarshal(teams, &reg.Teams); err != nil {
			return nil, fmt.Errorf("registration %s has bad teams payload: %w", reg.ID, err)
		}
	}
	return &reg, nil
}

func (r *Postgres) getRegistration(ctx context.Context, where string, arg any) (*model.Registration, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE `+where, arg)
	reg, err := scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	return reg, nil
}

func (r *Postgres) GetRegistrationByID(ctx context.Context, id uuid.UUID) (*model.Registration, error) {
	return r.getRegistration(ctx, `id = $1`, id)
}

func (r *Postgres) GetRegistrationByTicketID(ctx context.Context, ticketID string) (*model.Registration, error) {
	return r.getRegistration(ctx, `ticket_id = $1`, ticketID)
}

func (r *Postgres) GetPendingByOrderID(ctx context.Context, orderID string) (*model.Registration, error) {
	return r.getRegistration(ctx,
		`razorpay_order_id = $1 AND payment_status = '`+string(model.StatusPending)+`' ORDER BY created_at LIMIT 1`,
		orderID)
}

func (r *Postgres) CreatePendingRegistration(ctx context.Context, reg *model.Registration) error {
	if reg.Teams == nil {
		reg.Teams = []model.TeamRegistration{}
	}
	teams, err := json.Marshal(reg.Teams)
	if err != nil {
		return fmt.Errorf("failed to encode teams: %w", err)
	}
	if reg.ID == uuid.Nil {
		reg.ID = uuid.New()
	}

	reg.PaymentStatus = model.StatusPending
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO registrations (id, ticket_id, name, email, phone, college, year, department,
		                           event_ids, teams, total_amount, payment_status, razorpay_order_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::uuid[], $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`, reg.ID, reg.TicketID, reg.Name, reg.Email, reg.Phone, reg.College, reg.Year, reg.Department,
		pq.Array(uuidStrings(reg.EventIDs)), teams, reg.TotalAmount, reg.PaymentStatus, reg.OrderID,
	).Scan(&reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateTicket
		}
		return fmt.Errorf("failed to create registration: %w", err)
	}
	return nil
}

func (r *Postgres) MarkPaid(ctx context.Context, id uuid.UUID, paymentID, signature string) (*model.Registration, error) {
	t := model.MarkPaid

	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	row := tx.QueryRowContext(ctx, `
		UPDATE registrations
		SET payment_status = $2, razorpay_payment_id = $3, razorpay_signature = $4, updated_at = NOW()
		WHERE id = $1 AND payment_status = $5
		RETURNING `+registrationColumns,
		id, t.To, paymentID, signature, t.From)
	reg, err := scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return nil, ErrStaleState
	}
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to mark registration paid: %w", err)
	}

	oversold, err := takeSeats(ctx, tx, reg.Seats())
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	if len(oversold) > 0 {
		return reg, fmt.Errorf("%w: %s", ErrOversold, strings.Join(uuidStrings(oversold), ","))
	}
	return reg, nil
}

// takeSeats increments current_participants for each event, in a fixed id
// order so overlapping payments cannot deadlock. Events that had no room are
// incremented anyway and returned.
func takeSeats(ctx context.Context, tx *sql.Tx, seats map[uuid.UUID]int) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(seats))
	for id := range seats {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	var oversold []uuid.UUID
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `
			UPDATE events
			SET current_participants = current_participants + $2, updated_at = NOW()
			WHERE id = $1 AND current_participants + $2 <= max_participants
		`, id, seats[id])
		if err != nil {
			return nil, fmt.Errorf("failed to take seats on %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE events
			SET current_participants = current_participants + $2, updated_at = NOW()
			WHERE id = $1
		`, id, seats[id]); err != nil {
			return nil, fmt.Errorf("failed to take seats on %s: %w", id, err)
		}
		oversold = append(oversold, id)
	}
	return oversold, nil
}

func (r *Postgres) MarkFailed(ctx context.Context, orderID string) (int, error) {
	t := model.MarkFailed
	res, err := r.db.ExecContext(ctx, `
		UPDATE registrations
		SET payment_status = $2, updated_at = NOW()
		WHERE razorpay_order_id = $1 AND payment_status = $3
	`, orderID, t.To, t.From)
	if err != nil {
		return 0, fmt.Errorf("failed to mark registrations failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to mark registrations failed: %w", err)
	}
	return int(n), nil
}

func (r *Postgres) SetPassAsset(ctx context.Context, id uuid.UUID, asset string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE registrations SET qr_code = $2, updated_at = NOW()
		WHERE id = $1 AND payment_status = $3
	`, id, asset, model.StatusPaid)
	if err != nil {
		return fmt.Errorf("failed to store pass: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotPaid
	}
	return nil
}

func (r *Postgres) CheckIn(ctx context.Context, id uuid.UUID, staffID uuid.UUID, at time.Time) (*model.Registration, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE registrations
		SET checked_in = TRUE, checked_in_at = $2, checked_in_by = $3, updated_at = NOW()
		WHERE id = $1 AND payment_status = $4 AND NOT checked_in
		RETURNING `+registrationColumns,
		id, at, staffID, model.StatusPaid)
	reg, err := scanRegistration(row)
	if err == nil {
		return reg, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check in: %w", err)
	}

	current, err := r.GetRegistrationByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return classifyCheckIn(current)
}

// classifyCheckIn explains why the conditional check-in update touched nothing.
func classifyCheckIn(reg *model.Registration) (*model.Registration, error) {
	switch {
	case reg.PaymentStatus != model.StatusPaid:
		return reg, ErrNotPaid
	case reg.CheckedIn:
		return reg, ErrAlreadyCheckedIn
	default:
		return reg, ErrStaleState
	}
}

func (r *Postgres) ListRegistrations(ctx context.Context, f model.RegistrationFilter) ([]model.Registration, int, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.Status != "" {
		conds = append(conds, "payment_status = "+arg(f.Status))
	}
	if f.EventID != nil {
		conds = append(conds, arg(*f.EventID)+"::uuid = ANY(event_ids)")
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		p := arg("%" + s + "%")
		conds = append(conds, "(name ILIKE "+p+" OR email ILIKE "+p+" OR ticket_id ILIKE "+p+" OR phone ILIKE "+p+")")
	}
	if f.Date != nil {
		conds = append(conds, "(created_at AT TIME ZONE 'UTC')::date = "+arg(f.Date.UTC().Format("2006-01-02"))+"::date")
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM registrations`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count registrations: %w", err)
	}

	query := `SELECT ` + registrationColumns + ` FROM registrations` + where +
		` ORDER BY created_at DESC LIMIT ` + arg(f.Limit) + ` OFFSET ` + arg(f.Offset())
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list registrations: %w", err)
	}
	defer rows.Close()

	regs := make([]model.Registration, 0, f.Limit)
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	return regs, total, rows.Err()
}

func (r *Postgres) Stats(ctx context.Context) (*model.Stats, error) {
	var st model.Stats
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return r.db.QueryRowContext(gctx, `
			SELECT COUNT(*), COALESCE(SUM(total_amount), 0), COUNT(*) FILTER (WHERE checked_in)
			FROM registrations WHERE payment_status = $1
		`, model.StatusPaid).Scan(&st.TotalRegistrations, &st.TotalRevenue, &st.CheckedIn)
	})
	g.Go(func() error {
		return r.db.QueryRowContext(gctx,
			`SELECT COUNT(*) FROM registrations WHERE payment_status = $1`, model.StatusPending,
		).Scan(&st.PendingPayments)
	})
	g.Go(func() error {
		rows, err := r.db.QueryContext(gctx, `
			SELECT id, name, category, current_participants, max_participants
			FROM events WHERE is_active ORDER BY category, name
		`)
		if err != nil {
			return err
		}
		defer rows.Close()
		occ := make([]model.EventOccupancy, 0)
		for rows.Next() {
			var o model.EventOccupancy
			if err := rows.Scan(&o.ID, &o.Name, &o.Category, &o.CurrentParticipants, &o.MaxParticipants); err != nil {
				return err
			}
			occ = append(occ, o)
		}
		st.Events = occ
		return rows.Err()
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	return &st, nil
}

func (r *Postgres) GetStaffByEmail(ctx context.Context, email string) (*model.Staff, error) {
	var s model.Staff
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, name, role, password_hash, created_at
		FROM staff_users WHERE email = lower($1)
	`, strings.TrimSpace(email)).Scan(&s.ID, &s.Email, &s.Name, &s.Role, &s.PasswordHash, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get staff user: %w", err)
	}
	return &s, nil
}

func (r *Postgres) UpsertStaff(ctx context.Context, s *model.Staff) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO staff_users (id, email, name, role, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO UPDATE SET
			name = EXCLUDED.name, role = EXCLUDED.role, password_hash = EXCLUDED.password_hash
		RETURNING id, created_at
	`, s.ID, s.Email, s.Name, s.Role, s.PasswordHash).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert staff user: %w", err)
	}
	return nil
}

// EventIDForSlug derives a stable event id so reseeding keeps ids unchanged.
func EventIDForSlug(slug string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("festpass:event:"+slug))
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
